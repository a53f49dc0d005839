package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores the graph in two tables: graph_entities with a jsonb
// property bag and graph_relationships with directed typed edges.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS graph_entities (
	id          TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	properties  JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_type, id)
);
CREATE TABLE IF NOT EXISTS graph_relationships (
	from_id  TEXT NOT NULL,
	rel_type TEXT NOT NULL,
	to_id    TEXT NOT NULL,
	PRIMARY KEY (from_id, rel_type, to_id)
);
CREATE INDEX IF NOT EXISTS idx_graph_entities_type ON graph_entities (entity_type);
CREATE INDEX IF NOT EXISTS idx_graph_relationships_to ON graph_relationships (to_id, rel_type);
`
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return &IOError{Op: "migrate", Err: err}
	}
	return nil
}

// Add inserts or replaces an entity.
func (p *Postgres) Add(ctx context.Context, e *Entity) error {
	props, err := json.Marshal(e.Props)
	if err != nil {
		return &IOError{Op: "add", Err: err}
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO graph_entities (id, entity_type, properties) VALUES ($1, $2, $3)
ON CONFLICT (entity_type, id) DO UPDATE SET properties = EXCLUDED.properties`,
		e.ID, e.Type, props)
	if err != nil {
		return &IOError{Op: "add", Err: err}
	}
	return nil
}

// Relate adds a directed relationship; re-adding is a no-op.
func (p *Postgres) Relate(ctx context.Context, fromID, rel, toID string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO graph_relationships (from_id, rel_type, to_id) VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`, fromID, rel, toID)
	if err != nil {
		return &IOError{Op: "relate", Err: err}
	}
	return nil
}

// Get fetches one entity.
func (p *Postgres) Get(ctx context.Context, entityType, id string) (*Entity, error) {
	var props []byte
	err := p.pool.QueryRow(ctx,
		`SELECT properties FROM graph_entities WHERE entity_type = $1 AND id = $2`,
		entityType, id).Scan(&props)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, &IOError{Op: "get", Err: err}
	}

	e := &Entity{ID: id, Type: entityType, Props: map[string]any{}}
	if err := json.Unmarshal(props, &e.Props); err != nil {
		return nil, &IOError{Op: "get", Err: err}
	}
	normalizeProps(e.Props)
	return e, nil
}

// Related reports whether a relationship exists.
func (p *Postgres) Related(ctx context.Context, fromID, rel, toID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM graph_relationships
	WHERE from_id = $1 AND rel_type = $2 AND to_id = $3
)`, fromID, rel, toID).Scan(&exists)
	if err != nil {
		return false, &IOError{Op: "related", Err: err}
	}
	return exists, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Run compiles a wire-dialect query to SQL and executes it.
func (p *Postgres) Run(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	wq, err := ParseWire(query)
	if err != nil {
		return nil, &IOError{Op: "parse", Err: err}
	}

	c := &sqlCompiler{params: params}
	if wq.Set != nil {
		return p.runWrite(ctx, wq, c)
	}
	return p.runRead(ctx, wq, c)
}

func (p *Postgres) runRead(ctx context.Context, wq *WireQuery, c *sqlCompiler) ([]Row, error) {
	var from []string
	labels := make(map[string]string, len(wq.Matches))
	for _, m := range wq.Matches {
		from = append(from, fmt.Sprintf("graph_entities %s", m.Alias))
		labels[m.Alias] = m.Label
	}

	var conds []string
	for _, m := range wq.Matches {
		conds = append(conds, fmt.Sprintf("%s.entity_type = %s", m.Alias, c.bind(m.Label)))
	}
	if wq.Where != nil {
		pred, err := c.predicate(wq.Where)
		if err != nil {
			return nil, err
		}
		conds = append(conds, pred)
	}

	sql := fmt.Sprintf(
		"SELECT %s.id, %s.properties FROM %s WHERE %s ORDER BY %s.created_at, %s.id",
		wq.Return, wq.Return,
		strings.Join(from, ", "), strings.Join(conds, " AND "),
		wq.Return, wq.Return)

	rows, err := p.pool.Query(ctx, sql, c.args...)
	if err != nil {
		return nil, &IOError{Op: "query", Err: err}
	}
	defer rows.Close()

	label := labels[wq.Return]
	var out []Row
	for rows.Next() {
		var id string
		var props []byte
		if err := rows.Scan(&id, &props); err != nil {
			return nil, &IOError{Op: "scan", Err: err}
		}
		e := &Entity{ID: id, Type: label, Props: map[string]any{}}
		if err := json.Unmarshal(props, &e.Props); err != nil {
			return nil, &IOError{Op: "scan", Err: err}
		}
		normalizeProps(e.Props)
		out = append(out, Row{wq.Return: e})
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "query", Err: err}
	}
	return out, nil
}

// runWrite applies a single-property write with jsonb_set, touching only
// the named key.
func (p *Postgres) runWrite(ctx context.Context, wq *WireQuery, c *sqlCompiler) ([]Row, error) {
	if len(wq.Matches) != 1 {
		return nil, &IOError{Op: "write", Err: fmt.Errorf("write must match exactly one alias")}
	}
	m := wq.Matches[0]

	value, err := c.jsonValue(wq.Set.Value)
	if err != nil {
		return nil, err
	}

	var conds []string
	conds = append(conds, fmt.Sprintf("entity_type = %s", c.bind(m.Label)))
	if wq.Where != nil {
		pred, err := c.writePredicate(wq.Where, m.Alias)
		if err != nil {
			return nil, err
		}
		conds = append(conds, pred)
	}

	sql := fmt.Sprintf(
		"UPDATE graph_entities SET properties = jsonb_set(properties, '{%s}', %s::jsonb, true) WHERE %s RETURNING id, properties",
		wq.Set.Property, c.bind(value), strings.Join(conds, " AND "))

	rows, err := p.pool.Query(ctx, sql, c.args...)
	if err != nil {
		return nil, &IOError{Op: "write", Err: err}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var id string
		var props []byte
		if err := rows.Scan(&id, &props); err != nil {
			return nil, &IOError{Op: "scan", Err: err}
		}
		e := &Entity{ID: id, Type: m.Label, Props: map[string]any{}}
		if err := json.Unmarshal(props, &e.Props); err != nil {
			return nil, &IOError{Op: "scan", Err: err}
		}
		normalizeProps(e.Props)
		out = append(out, Row{m.Alias: e})
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "write", Err: err}
	}
	return out, nil
}

// sqlCompiler turns a predicate tree into SQL with positional arguments.
type sqlCompiler struct {
	params map[string]any
	args   []any
}

// bind appends a value to the argument list and returns its placeholder.
func (c *sqlCompiler) bind(v any) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

// paramValue resolves a wire parameter name.
func (c *sqlCompiler) paramValue(name string) (any, error) {
	v, ok := c.params[name]
	if !ok {
		return nil, &IOError{Op: "compile", Err: fmt.Errorf("missing parameter %q", name)}
	}
	return v, nil
}

// jsonValue renders an operand as a JSON text for jsonb contexts. Only
// parameters and literal-free arithmetic over parameters are supported in
// write values; property references in write values require a prior read.
func (c *sqlCompiler) jsonValue(op Operand) (string, error) {
	param, ok := op.(ParamOperand)
	if !ok {
		return "", &IOError{Op: "compile", Err: fmt.Errorf("write value must be a parameter")}
	}
	v, err := c.paramValue(param.Name)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", &IOError{Op: "compile", Err: err}
	}
	return string(data), nil
}

// text renders an operand as SQL text extraction (->> semantics).
func (c *sqlCompiler) text(op Operand) (string, error) {
	switch op := op.(type) {
	case PropOperand:
		if op.Property == "id" {
			return op.Alias + ".id", nil
		}
		return fmt.Sprintf("%s.properties->>'%s'", op.Alias, op.Property), nil
	case ParamOperand:
		v, err := c.paramValue(op.Name)
		if err != nil {
			return "", err
		}
		return c.bind(fmt.Sprintf("%v", v)), nil
	default:
		return "", &IOError{Op: "compile", Err: fmt.Errorf("operand %T has no text form", op)}
	}
}

// jsonb renders an operand as a jsonb SQL expression so equality works
// across types.
func (c *sqlCompiler) jsonb(op Operand) (string, error) {
	switch op := op.(type) {
	case PropOperand:
		if op.Property == "id" {
			return fmt.Sprintf("to_jsonb(%s.id)", op.Alias), nil
		}
		return fmt.Sprintf("%s.properties->'%s'", op.Alias, op.Property), nil
	case ParamOperand:
		v, err := c.paramValue(op.Name)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return "", &IOError{Op: "compile", Err: err}
		}
		return c.bind(string(data)) + "::jsonb", nil
	case *ArithOperand:
		num, err := c.numeric(op)
		if err != nil {
			return "", err
		}
		return "to_jsonb(" + num + ")", nil
	default:
		return "", &IOError{Op: "compile", Err: fmt.Errorf("operand %T has no jsonb form", op)}
	}
}

// numeric renders an operand as a numeric SQL expression for ordering and
// arithmetic.
func (c *sqlCompiler) numeric(op Operand) (string, error) {
	switch op := op.(type) {
	case PropOperand:
		return fmt.Sprintf("(%s.properties->>'%s')::numeric", op.Alias, op.Property), nil
	case ParamOperand:
		v, err := c.paramValue(op.Name)
		if err != nil {
			return "", err
		}
		return c.bind(v) + "::numeric", nil
	case *ArithOperand:
		left, err := c.numeric(op.Left)
		if err != nil {
			return "", err
		}
		right, err := c.numeric(op.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, op.Op, right), nil
	default:
		return "", &IOError{Op: "compile", Err: fmt.Errorf("operand %T has no numeric form", op)}
	}
}

func isNumericOperand(op Operand, params map[string]any) bool {
	switch op := op.(type) {
	case *ArithOperand:
		return true
	case ParamOperand:
		_, ok := wireFloat(params[op.Name])
		return ok
	default:
		return false
	}
}

func (c *sqlCompiler) predicate(p Predicate) (string, error) {
	switch p := p.(type) {
	case *LogicalPred:
		left, err := c.predicate(p.Left)
		if err != nil {
			return "", err
		}
		right, err := c.predicate(p.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, p.Op, right), nil

	case *NotPred:
		inner, err := c.predicate(p.Inner)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", inner), nil

	case *CmpPred:
		return c.comparison(p)

	case *InPred:
		v, err := c.paramValue(p.Param)
		if err != nil {
			return "", err
		}
		list, ok := v.([]any)
		if !ok {
			return "", &IOError{Op: "compile", Err: fmt.Errorf("parameter %q is not a list", p.Param)}
		}
		value, err := c.jsonb(p.Value)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(list)
		if err != nil {
			return "", &IOError{Op: "compile", Err: err}
		}
		return fmt.Sprintf("%s::jsonb @> %s", c.bind(string(data)), value), nil

	case *NullPred:
		value, err := c.text(p.Value)
		if err != nil {
			return "", err
		}
		if p.Negated {
			return value + " IS NOT NULL", nil
		}
		return value + " IS NULL", nil

	case *RegexPred:
		value, err := c.text(p.Value)
		if err != nil {
			return "", err
		}
		v, err := c.paramValue(p.Param)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s ~ %s", value, c.bind(v)), nil

	case *ExistsPred:
		sub := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM graph_relationships rel WHERE rel.from_id = %s.id AND rel.rel_type = %s AND rel.to_id = %s.id)",
			p.Head, c.bind(p.Rel), p.Tail)
		if p.Where == nil {
			return sub, nil
		}
		inner, err := c.predicate(p.Where)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s AND %s)", sub, inner), nil

	case *ParamPred:
		v, err := c.paramValue(p.Param)
		if err != nil {
			return "", err
		}
		return c.bind(truthyWire(v)) + "::boolean", nil

	case *PropPred:
		return fmt.Sprintf(
			"(%s.properties->'%s' IS NOT NULL AND %s.properties->'%s' NOT IN ('false'::jsonb, '0'::jsonb, '\"\"'::jsonb, 'null'::jsonb))",
			p.Prop.Alias, p.Prop.Property, p.Prop.Alias, p.Prop.Property), nil

	default:
		return "", &IOError{Op: "compile", Err: fmt.Errorf("unsupported predicate %T", p)}
	}
}

func (c *sqlCompiler) comparison(p *CmpPred) (string, error) {
	numeric := isNumericOperand(p.Left, c.params) || isNumericOperand(p.Right, c.params)
	ordered := p.Op == "<" || p.Op == ">" || p.Op == "<=" || p.Op == ">="

	if numeric && (ordered || p.Op == "==" || p.Op == "!=") {
		left, err := c.numeric(p.Left)
		if err != nil {
			return "", err
		}
		right, err := c.numeric(p.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, sqlOp(p.Op), right), nil
	}

	if ordered {
		left, err := c.text(p.Left)
		if err != nil {
			return "", err
		}
		right, err := c.text(p.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, sqlOp(p.Op), right), nil
	}

	// Identity constraints compare the id column as text; everything else
	// compares jsonb so types survive.
	if lp, ok := p.Left.(PropOperand); ok && lp.Property == "id" {
		left, err := c.text(p.Left)
		if err != nil {
			return "", err
		}
		right, err := c.text(p.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, sqlOp(p.Op), right), nil
	}

	left, err := c.jsonb(p.Left)
	if err != nil {
		return "", err
	}
	right, err := c.jsonb(p.Right)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", left, sqlOp(p.Op), right), nil
}

// writePredicate compiles the WHERE of a write, where the single alias
// maps to the bare UPDATE target table.
func (c *sqlCompiler) writePredicate(p Predicate, alias string) (string, error) {
	cmp, ok := p.(*CmpPred)
	if !ok {
		return "", &IOError{Op: "compile", Err: fmt.Errorf("write predicate must be an identity constraint")}
	}
	prop, ok := cmp.Left.(PropOperand)
	if !ok || prop.Alias != alias || prop.Property != "id" {
		return "", &IOError{Op: "compile", Err: fmt.Errorf("write predicate must constrain %s.id", alias)}
	}
	param, ok := cmp.Right.(ParamOperand)
	if !ok {
		return "", &IOError{Op: "compile", Err: fmt.Errorf("write predicate id must be a parameter")}
	}
	v, err := c.paramValue(param.Name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("id = %s", c.bind(v)), nil
}

func sqlOp(op string) string {
	if op == "==" {
		return "="
	}
	return op
}

// normalizeProps rewrites json.Unmarshal's float64 numbers to int64 where
// the value is integral, matching the memory driver's representation.
func normalizeProps(props map[string]any) {
	for k, v := range props {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			props[k] = int64(f)
		}
	}
}
