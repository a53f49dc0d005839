package graph

import (
	"testing"
)

func TestParseWireRead(t *testing.T) {
	q, err := ParseWire("MATCH (s:Supplier) MATCH (po:PurchaseOrder) WHERE s.id = $id_s AND " +
		"(EXISTS((po)-[:orderedFrom]->(s)) AND po.status == $param_0) RETURN po")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(q.Matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(q.Matches))
	}
	if q.Matches[0].Alias != "s" || q.Matches[0].Label != "Supplier" {
		t.Errorf("match 0 = %+v", q.Matches[0])
	}
	if q.Return != "po" {
		t.Errorf("return = %q, want po", q.Return)
	}

	and, ok := q.Where.(*LogicalPred)
	if !ok || and.Op != "AND" {
		t.Fatalf("where = %#v, want top-level AND", q.Where)
	}

	identity, ok := and.Left.(*CmpPred)
	if !ok || identity.Op != "==" {
		t.Fatalf("left = %#v, want identity comparison", and.Left)
	}
	if prop, ok := identity.Left.(PropOperand); !ok || prop.Property != "id" {
		t.Errorf("identity left = %#v", identity.Left)
	}

	inner, ok := and.Right.(*LogicalPred)
	if !ok {
		t.Fatalf("right = %#v, want nested AND", and.Right)
	}
	exists, ok := inner.Left.(*ExistsPred)
	if !ok {
		t.Fatalf("nested left = %#v, want exists", inner.Left)
	}
	if exists.Head != "po" || exists.Rel != "orderedFrom" || exists.Tail != "s" {
		t.Errorf("exists = %+v", exists)
	}
}

func TestParseWireWrite(t *testing.T) {
	q, err := ParseWire("MATCH (n:PurchaseOrder) WHERE n.id = $id SET n.status = $param_0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if q.Set == nil {
		t.Fatal("expected a SET clause")
	}
	if q.Set.Alias != "n" || q.Set.Property != "status" {
		t.Errorf("set = %+v", q.Set)
	}
	if param, ok := q.Set.Value.(ParamOperand); !ok || param.Name != "param_0" {
		t.Errorf("set value = %#v", q.Set.Value)
	}
	if q.Return != "" {
		t.Errorf("return = %q, want empty", q.Return)
	}
}

func TestParseWirePredicates(t *testing.T) {
	tests := []struct {
		name  string
		query string
		check func(t *testing.T, p Predicate)
	}{
		{
			name:  "membership",
			query: "MATCH (n:T) WHERE n.status IN $param_0 RETURN n",
			check: func(t *testing.T, p Predicate) {
				in, ok := p.(*InPred)
				if !ok || in.Param != "param_0" {
					t.Errorf("pred = %#v", p)
				}
			},
		},
		{
			name:  "null check",
			query: "MATCH (n:T) WHERE n.approvedAt IS NOT NULL RETURN n",
			check: func(t *testing.T, p Predicate) {
				null, ok := p.(*NullPred)
				if !ok || !null.Negated {
					t.Errorf("pred = %#v", p)
				}
			},
		},
		{
			name:  "regex",
			query: "MATCH (n:T) WHERE n.email =~ $param_0 RETURN n",
			check: func(t *testing.T, p Predicate) {
				if _, ok := p.(*RegexPred); !ok {
					t.Errorf("pred = %#v", p)
				}
			},
		},
		{
			name:  "bare boolean parameter",
			query: "MATCH (n:T) WHERE $param_0 RETURN n",
			check: func(t *testing.T, p Predicate) {
				if _, ok := p.(*ParamPred); !ok {
					t.Errorf("pred = %#v", p)
				}
			},
		},
		{
			name:  "bare property truthiness",
			query: "MATCH (n:T) WHERE NOT (n.closed) RETURN n",
			check: func(t *testing.T, p Predicate) {
				not, ok := p.(*NotPred)
				if !ok {
					t.Fatalf("pred = %#v", p)
				}
				if _, ok := not.Inner.(*PropPred); !ok {
					t.Errorf("inner = %#v", not.Inner)
				}
			},
		},
		{
			name:  "arithmetic with grouping",
			query: "MATCH (n:T) WHERE (n.total - n.paid) * n.rate > $param_0 RETURN n",
			check: func(t *testing.T, p Predicate) {
				cmp, ok := p.(*CmpPred)
				if !ok || cmp.Op != ">" {
					t.Fatalf("pred = %#v", p)
				}
				outer, ok := cmp.Left.(*ArithOperand)
				if !ok || outer.Op != "*" {
					t.Fatalf("left = %#v", cmp.Left)
				}
				if inner, ok := outer.Left.(*ArithOperand); !ok || inner.Op != "-" {
					t.Errorf("grouped operand = %#v", outer.Left)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseWire(tt.query)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tt.check(t, q.Where)
		})
	}
}

func TestParseWireErrors(t *testing.T) {
	tests := []string{
		"",
		"RETURN n",
		"MATCH (n:T)",
		"MATCH (n:T) WHERE RETURN n",
		"MATCH (n:T) RETURN n trailing",
		"MATCH (n:T) WHERE n.a == RETURN n",
	}

	for _, query := range tests {
		if _, err := ParseWire(query); err == nil {
			t.Errorf("expected error for %q", query)
		}
	}
}
