package graph

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sync"
	"time"
)

// Memory is an in-memory graph store for development and tests. It speaks
// the same wire dialect as the Postgres driver.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]map[string]*Entity  // type -> id -> entity
	order    map[string][]string            // type -> insertion order of ids
	rels     map[string]map[string][]string // fromID -> rel -> toIDs
}

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{
		entities: make(map[string]map[string]*Entity),
		order:    make(map[string][]string),
		rels:     make(map[string]map[string][]string),
	}
}

// Add inserts or replaces an entity.
func (m *Memory) Add(e *Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.entities[e.Type]
	if !ok {
		byID = make(map[string]*Entity)
		m.entities[e.Type] = byID
	}
	if _, exists := byID[e.ID]; !exists {
		m.order[e.Type] = append(m.order[e.Type], e.ID)
	}
	byID[e.ID] = e.Clone()
}

// Relate adds a directed relationship.
func (m *Memory) Relate(fromID, rel, toID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byRel, ok := m.rels[fromID]
	if !ok {
		byRel = make(map[string][]string)
		m.rels[fromID] = byRel
	}
	for _, existing := range byRel[rel] {
		if existing == toID {
			return
		}
	}
	byRel[rel] = append(byRel[rel], toID)
}

// Get fetches an entity by type and id.
func (m *Memory) Get(ctx context.Context, entityType, id string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.entities[entityType][id]; ok {
		return e.Clone(), nil
	}
	return nil, nil
}

// Related reports whether fromID has a rel edge to toID.
func (m *Memory) Related(ctx context.Context, fromID, rel, toID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.relatedLocked(fromID, rel, toID), nil
}

func (m *Memory) relatedLocked(fromID, rel, toID string) bool {
	for _, id := range m.rels[fromID][rel] {
		if id == toID {
			return true
		}
	}
	return false
}

// Close releases nothing; it exists to satisfy the driver interface.
func (m *Memory) Close() error { return nil }

// Run executes a wire-dialect query. Reads return one row per match of
// the RETURN alias; writes apply the SET clause to every matched entity
// and return those entities in their post-write state.
func (m *Memory) Run(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	wq, err := ParseWire(query)
	if err != nil {
		return nil, &IOError{Op: "parse", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.match(wq, params)
	if err != nil {
		return nil, err
	}

	if wq.Set != nil {
		var out []Row
		for _, row := range rows {
			target := row[wq.Set.Alias]
			if target == nil {
				continue
			}
			value, err := m.operand(wq.Set.Value, row, params)
			if err != nil {
				return nil, err
			}
			// Rows hold clones; write through to the stored entity.
			stored := m.entities[target.Type][target.ID]
			if stored == nil {
				continue
			}
			if stored.Props == nil {
				stored.Props = make(map[string]any)
			}
			stored.Props[wq.Set.Property] = value
			out = append(out, Row{wq.Set.Alias: stored.Clone()})
		}
		return out, nil
	}

	var out []Row
	for _, row := range rows {
		out = append(out, Row{wq.Return: row[wq.Return]})
	}
	return out, nil
}

// match produces every combination of entities satisfying the MATCH
// clauses and the WHERE predicate, in insertion order.
func (m *Memory) match(wq *WireQuery, params map[string]any) ([]Row, error) {
	rows := []Row{{}}
	for _, clause := range wq.Matches {
		var expanded []Row
		for _, row := range rows {
			for _, id := range m.order[clause.Label] {
				next := Row{}
				for k, v := range row {
					next[k] = v
				}
				next[clause.Alias] = m.entities[clause.Label][id].Clone()
				expanded = append(expanded, next)
			}
		}
		rows = expanded
	}

	if wq.Where == nil {
		return rows, nil
	}

	var filtered []Row
	for _, row := range rows {
		ok, err := m.predicate(wq.Where, row, params)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func (m *Memory) predicate(p Predicate, row Row, params map[string]any) (bool, error) {
	switch p := p.(type) {
	case *LogicalPred:
		left, err := m.predicate(p.Left, row, params)
		if err != nil {
			return false, err
		}
		if p.Op == "AND" && !left {
			return false, nil
		}
		if p.Op == "OR" && left {
			return true, nil
		}
		return m.predicate(p.Right, row, params)

	case *NotPred:
		inner, err := m.predicate(p.Inner, row, params)
		if err != nil {
			return false, err
		}
		return !inner, nil

	case *CmpPred:
		left, err := m.operand(p.Left, row, params)
		if err != nil {
			return false, err
		}
		right, err := m.operand(p.Right, row, params)
		if err != nil {
			return false, err
		}
		return compareWire(p.Op, left, right), nil

	case *InPred:
		value, err := m.operand(p.Value, row, params)
		if err != nil {
			return false, err
		}
		if value == nil {
			return false, nil
		}
		list, ok := params[p.Param].([]any)
		if !ok {
			return false, &IOError{Op: "run", Err: fmt.Errorf("parameter %q is not a list", p.Param)}
		}
		for _, item := range list {
			if wireEqual(value, item) {
				return true, nil
			}
		}
		return false, nil

	case *NullPred:
		value, err := m.operand(p.Value, row, params)
		if err != nil {
			return false, err
		}
		if p.Negated {
			return value != nil, nil
		}
		return value == nil, nil

	case *RegexPred:
		value, err := m.operand(p.Value, row, params)
		if err != nil {
			return false, err
		}
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		pattern, ok := params[p.Param].(string)
		if !ok {
			return false, &IOError{Op: "run", Err: fmt.Errorf("parameter %q is not a string", p.Param)}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, &IOError{Op: "run", Err: err}
		}
		return re.MatchString(s), nil

	case *ExistsPred:
		head := row[p.Head]
		tail := row[p.Tail]
		if head == nil || tail == nil {
			return false, nil
		}
		if !m.relatedLocked(head.ID, p.Rel, tail.ID) {
			return false, nil
		}
		if p.Where == nil {
			return true, nil
		}
		return m.predicate(p.Where, row, params)

	case *ParamPred:
		return truthyWire(params[p.Param]), nil

	case *PropPred:
		value, err := m.operand(p.Prop, row, params)
		if err != nil {
			return false, err
		}
		return truthyWire(value), nil

	default:
		return false, &IOError{Op: "run", Err: fmt.Errorf("unsupported predicate %T", p)}
	}
}

func (m *Memory) operand(op Operand, row Row, params map[string]any) (any, error) {
	switch op := op.(type) {
	case PropOperand:
		entity := row[op.Alias]
		if entity == nil {
			return nil, nil
		}
		if op.Property == "id" {
			if _, ok := entity.Props["id"]; !ok {
				return entity.ID, nil
			}
		}
		return entity.Props[op.Property], nil

	case ParamOperand:
		return params[op.Name], nil

	case *ArithOperand:
		left, err := m.operand(op.Left, row, params)
		if err != nil {
			return nil, err
		}
		right, err := m.operand(op.Right, row, params)
		if err != nil {
			return nil, err
		}
		return arithWire(op.Op, left, right), nil

	default:
		return nil, &IOError{Op: "run", Err: fmt.Errorf("unsupported operand %T", op)}
	}
}

// Value semantics below mirror the expression evaluator: comparisons
// against nil are false, numerics coerce, strings order byte-wise.

func wireEqual(a, b any) bool {
	if af, aok := wireFloat(a); aok {
		bf, bok := wireFloat(b)
		return bok && af == bf
	}
	if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		return bok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

func compareWire(op string, a, b any) bool {
	if op == "==" {
		if a == nil && b == nil {
			return true
		}
		if a == nil || b == nil {
			return false
		}
		return wireEqual(a, b)
	}
	if a == nil || b == nil {
		return false
	}
	if op == "!=" {
		return !wireEqual(a, b)
	}

	var cmp int
	if af, aok := wireFloat(a); aok {
		bf, bok := wireFloat(b)
		if !bok {
			return false
		}
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		}
	} else if as, aok := a.(string); aok {
		bs, bok := b.(string)
		if !bok {
			return false
		}
		switch {
		case as < bs:
			cmp = -1
		case as > bs:
			cmp = 1
		}
	} else if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		if !bok {
			return false
		}
		cmp = at.Compare(bt)
	} else {
		return false
	}

	switch op {
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func arithWire(op string, a, b any) any {
	ai, aInt := wireInt(a)
	bi, bInt := wireInt(b)
	if aInt && bInt && op != "/" {
		switch op {
		case "+":
			return ai + bi
		case "-":
			return ai - bi
		case "*":
			return ai * bi
		}
	}

	af, aok := wireFloat(a)
	bf, bok := wireFloat(b)
	if !aok || !bok {
		if op == "+" {
			if as, ok := a.(string); ok {
				if bs, ok := b.(string); ok {
					return as + bs
				}
			}
		}
		return nil
	}
	switch op {
	case "+":
		return af + bf
	case "-":
		return af - bf
	case "*":
		return af * bf
	case "/":
		if bf == 0 {
			return nil
		}
		return af / bf
	}
	return nil
}

func wireFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}

func wireInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func truthyWire(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}
