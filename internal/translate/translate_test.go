package translate

import (
	"strings"
	"testing"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/parser"
)

func parseClause(t *testing.T, clause string) *ast.ForClause {
	t.Helper()
	input := "RULE R { ON CREATE(T) " + clause + " }"
	defs, diags := parser.Parse(input, "translate.rdsl")
	if diags.HasErrors() {
		t.Fatalf("parse: %v", diags.Err())
	}
	return defs[0].(*ast.RuleDef).Body
}

func TestTranslateSimpleGuard(t *testing.T) {
	clause := parseClause(t, `FOR (n:T WHERE n.status == "Open") { SET n.x = 1; }`)

	q, err := Translate(clause, nil, nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}

	want := "MATCH (n:T) WHERE n.status == $param_0 RETURN n"
	if q.Text != want {
		t.Errorf("text = %q, want %q", q.Text, want)
	}
	if q.Params["param_0"] != "Open" {
		t.Errorf("param_0 = %v, want Open", q.Params["param_0"])
	}
}

func TestTranslateParameterizationSafety(t *testing.T) {
	hostile := `o'; DROP TABLE --`
	clause := parseClause(t, `FOR (n:T WHERE n.name == "o'; DROP TABLE --") { SET n.x = 1; }`)

	q, err := Translate(clause, nil, nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}

	if !strings.Contains(q.Text, "n.name == $param_0") {
		t.Errorf("text = %q, want n.name == $param_0", q.Text)
	}
	if strings.Contains(q.Text, "DROP TABLE") {
		t.Errorf("literal leaked into query text: %q", q.Text)
	}
	if q.Params["param_0"] != hostile {
		t.Errorf("param_0 = %q, want the literal verbatim", q.Params["param_0"])
	}
}

func TestTranslateBindings(t *testing.T) {
	// The inner clause references s, which the outer FOR binds; the
	// binding pins it to one entity for the translated query.
	input := `RULE R { ON UPDATE(Supplier.status)
FOR (s:Supplier) {
  FOR (po:PurchaseOrder WHERE po -[orderedFrom]-> s AND po.status == "Open") { SET po.x = 1; }
}
}`
	defs, diags := parser.Parse(input, "translate.rdsl")
	if diags.HasErrors() {
		t.Fatalf("parse: %v", diags.Err())
	}
	clause := defs[0].(*ast.RuleDef).Body.Body[0].(*ast.ForClause)

	q, err := Translate(clause, []Binding{{Var: "s", EntityType: "Supplier", ID: "BP_10001"}}, nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}

	want := "MATCH (s:Supplier) MATCH (po:PurchaseOrder) WHERE s.id = $id_s AND " +
		"(EXISTS((po)-[:orderedFrom]->(s)) AND po.status == $param_0) RETURN po"
	if q.Text != want {
		t.Errorf("text = %q\nwant %q", q.Text, want)
	}
	if q.Params["id_s"] != "BP_10001" {
		t.Errorf("id_s = %v", q.Params["id_s"])
	}
	if q.Params["param_0"] != "Open" {
		t.Errorf("param_0 = %v", q.Params["param_0"])
	}
}

func TestTranslatePredicates(t *testing.T) {
	tests := []struct {
		name     string
		guard    string
		wantText string
		check    func(t *testing.T, params map[string]any)
	}{
		{
			name:     "membership",
			guard:    `n.status IN ["Expired", "Blacklisted"]`,
			wantText: "MATCH (n:T) WHERE n.status IN $param_0 RETURN n",
			check: func(t *testing.T, params map[string]any) {
				list, ok := params["param_0"].([]any)
				if !ok || len(list) != 2 || list[0] != "Expired" {
					t.Errorf("param_0 = %#v", params["param_0"])
				}
			},
		},
		{
			name:     "null check",
			guard:    `n.approvedAt IS NOT NULL`,
			wantText: "MATCH (n:T) WHERE n.approvedAt IS NOT NULL RETURN n",
		},
		{
			name:     "regex match",
			guard:    `n.email MATCHES ".+@corp"`,
			wantText: "MATCH (n:T) WHERE n.email =~ $param_0 RETURN n",
			check: func(t *testing.T, params map[string]any) {
				// The parameter carries the implicit whole-string
				// anchoring, so drivers need no convention of their own.
				if params["param_0"] != "^(?:.+@corp)$" {
					t.Errorf("param_0 = %q, want the anchored pattern", params["param_0"])
				}
			},
		},
		{
			name:     "logical nesting",
			guard:    `n.a == 1 OR n.b == 2 AND NOT n.closed`,
			wantText: "MATCH (n:T) WHERE (n.a == $param_0 OR (n.b == $param_1 AND NOT (n.closed))) RETURN n",
		},
		{
			name:     "arithmetic",
			guard:    `n.total - n.paid > 0`,
			wantText: "MATCH (n:T) WHERE n.total - n.paid > $param_0 RETURN n",
		},
		{
			name:     "exists with where",
			guard:    `EXISTS (n -[owns]-> n WHERE n.active == TRUE)`,
			wantText: "MATCH (n:T) WHERE EXISTS((n)-[:owns]->(n) WHERE n.active == $param_0) RETURN n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause := parseClause(t, "FOR (n:T WHERE "+tt.guard+") { SET n.x = 1; }")
			q, err := Translate(clause, nil, nil)
			if err != nil {
				t.Fatalf("translate: %v", err)
			}
			if q.Text != tt.wantText {
				t.Errorf("text = %q\nwant %q", q.Text, tt.wantText)
			}
			if tt.check != nil {
				tt.check(t, q.Params)
			}
		})
	}
}

func TestTranslateChanged(t *testing.T) {
	tests := []struct {
		name   string
		guard  string
		change *ChangeInfo
		want   bool
	}{
		{
			name:   "bare changed with differing values",
			guard:  "n.status CHANGED",
			change: &ChangeInfo{Property: "status", Old: "Active", New: "Suspended"},
			want:   true,
		},
		{
			name:   "bare changed with equal values",
			guard:  "n.status CHANGED",
			change: &ChangeInfo{Property: "status", Old: "Active", New: "Active"},
			want:   false,
		},
		{
			name:   "different property",
			guard:  "n.amount CHANGED",
			change: &ChangeInfo{Property: "status", Old: "Active", New: "Suspended"},
			want:   false,
		},
		{
			name:   "from to match",
			guard:  `n.status CHANGED FROM "Active" TO "Suspended"`,
			change: &ChangeInfo{Property: "status", Old: "Active", New: "Suspended"},
			want:   true,
		},
		{
			name:   "from to mismatch",
			guard:  `n.status CHANGED FROM "Draft" TO "Suspended"`,
			change: &ChangeInfo{Property: "status", Old: "Active", New: "Suspended"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause := parseClause(t, "FOR (n:T WHERE "+tt.guard+") { SET n.x = 1; }")
			q, err := Translate(clause, nil, tt.change)
			if err != nil {
				t.Fatalf("translate: %v", err)
			}
			if q.Text != "MATCH (n:T) WHERE $param_0 RETURN n" {
				t.Errorf("text = %q", q.Text)
			}
			if q.Params["param_0"] != tt.want {
				t.Errorf("param_0 = %v, want %v", q.Params["param_0"], tt.want)
			}
		})
	}
}

func TestTranslateRejectsFunctionCalls(t *testing.T) {
	clause := parseClause(t, `FOR (n:T WHERE n.expiresAt < NOW()) { SET n.x = 1; }`)

	_, err := Translate(clause, nil, nil)
	if err == nil {
		t.Fatal("expected a translation error for a function call in the guard")
	}
	if !strings.Contains(err.Error(), "NOW") {
		t.Errorf("error = %v, want mention of the function", err)
	}
}

func TestTranslateRejectsUnsafeLabels(t *testing.T) {
	clause := parseClause(t, `FOR (n:T WHERE n.status == "Open") { SET n.x = 1; }`)
	clause.EntityType = `T"; DROP`

	_, err := Translate(clause, nil, nil)
	if err == nil {
		t.Fatal("expected a translation error for an unsafe label")
	}
}

func TestTranslateUnguarded(t *testing.T) {
	clause := parseClause(t, `FOR (n:T) { SET n.x = 1; }`)

	q, err := Translate(clause, nil, nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if q.Text != "MATCH (n:T) RETURN n" {
		t.Errorf("text = %q", q.Text)
	}
	if len(q.Params) != 0 {
		t.Errorf("params = %v, want empty", q.Params)
	}
}

func TestTranslateWrite(t *testing.T) {
	q, err := TranslateWrite("PurchaseOrder", "PO_001", "status", "RiskLocked")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}

	want := "MATCH (n:PurchaseOrder) WHERE n.id = $id SET n.status = $param_0"
	if q.Text != want {
		t.Errorf("text = %q, want %q", q.Text, want)
	}
	if q.Params["id"] != "PO_001" || q.Params["param_0"] != "RiskLocked" {
		t.Errorf("params = %v", q.Params)
	}

	if _, err := TranslateWrite("T", "id", `status"; --`, 1); err == nil {
		t.Error("expected an error for an unsafe property name")
	}
}
