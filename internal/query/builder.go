package query

import (
	"fmt"
	"strings"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// Clause is one SQL fragment written with neutral "?" markers plus the
// arguments those markers bind, in order
type Clause struct {
	SQL  string
	Args []any
}

// C builds a clause
func C(sql string, args ...any) Clause {
	return Clause{SQL: sql, Args: args}
}

// SelectBuilder assembles a SELECT from ordered clauses. Arguments are only
// ever attached to the clause that introduces their markers, and numbering
// happens once, in Build.
type SelectBuilder struct {
	columns []Clause
	from    string
	where   []Clause
	groupBy []string
	orderBy []Clause
	limit   *Clause
	offset  *Clause
}

// NewSelect starts a builder with plain (argument-free) columns
func NewSelect(columns ...string) *SelectBuilder {
	b := &SelectBuilder{}
	for _, col := range columns {
		b.columns = append(b.columns, C(col))
	}
	return b
}

// Column adds a select-list expression that may bind arguments
func (b *SelectBuilder) Column(sql string, args ...any) *SelectBuilder {
	b.columns = append(b.columns, C(sql, args...))
	return b
}

func (b *SelectBuilder) From(from string) *SelectBuilder {
	b.from = from
	return b
}

// Where adds a predicate; predicates are joined with AND
func (b *SelectBuilder) Where(sql string, args ...any) *SelectBuilder {
	b.where = append(b.where, C(sql, args...))
	return b
}

func (b *SelectBuilder) GroupBy(columns ...string) *SelectBuilder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

func (b *SelectBuilder) OrderBy(sql string, args ...any) *SelectBuilder {
	b.orderBy = append(b.orderBy, C(sql, args...))
	return b
}

// Limit bounds the result; n <= 0 means unbounded
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	if n > 0 {
		c := C("LIMIT ?", n)
		b.limit = &c
	}
	return b
}

// Offset skips rows. It is only emitted together with a limit.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	if n > 0 {
		c := C("OFFSET ?", n)
		b.offset = &c
	}
	return b
}

// clauses lists every fragment in emission order
func (b *SelectBuilder) clauses() []Clause {
	out := make([]Clause, 0, len(b.columns)+len(b.where)+len(b.orderBy)+6)

	for i, col := range b.columns {
		prefix := ", "
		if i == 0 {
			prefix = "SELECT "
		}
		out = append(out, Clause{SQL: prefix + col.SQL, Args: col.Args})
	}
	out = append(out, C(" FROM "+b.from))

	for i, w := range b.where {
		prefix := " AND "
		if i == 0 {
			prefix = " WHERE "
		}
		out = append(out, Clause{SQL: prefix + "(" + w.SQL + ")", Args: w.Args})
	}

	if len(b.groupBy) > 0 {
		out = append(out, C(" GROUP BY "+strings.Join(b.groupBy, ", ")))
	}

	for i, o := range b.orderBy {
		prefix := ", "
		if i == 0 {
			prefix = " ORDER BY "
		}
		out = append(out, Clause{SQL: prefix + o.SQL, Args: o.Args})
	}

	if b.limit != nil {
		out = append(out, Clause{SQL: " " + b.limit.SQL, Args: b.limit.Args})
		if b.offset != nil {
			out = append(out, Clause{SQL: " " + b.offset.SQL, Args: b.offset.Args})
		}
	}
	return out
}

// Build folds the clauses into one statement for the dialect
func (b *SelectBuilder) Build(d store.Dialect) (store.Statement, error) {
	if len(b.columns) == 0 || b.from == "" {
		return store.Statement{}, fmt.Errorf("%w: select needs columns and a source", store.ErrMalformed)
	}
	text, args, err := fold(b.clauses())
	if err != nil {
		return store.Statement{}, err
	}
	return store.Select(d.Rebind(text), args...), nil
}

// MustBuild is Build for statically known statements
func (b *SelectBuilder) MustBuild(d store.Dialect) store.Statement {
	stmt, err := b.Build(d)
	if err != nil {
		panic(err)
	}
	return stmt
}

// fold concatenates clauses, checking that each one binds exactly as many
// arguments as it has markers
func fold(clauses []Clause) (string, []any, error) {
	var sb strings.Builder
	args := make([]any, 0)

	for _, c := range clauses {
		if n := store.CountMarkers(c.SQL); n != len(c.Args) {
			return "", nil, fmt.Errorf("%w: clause %q has %d markers for %d arguments", store.ErrMalformed, c.SQL, n, len(c.Args))
		}
		sb.WriteString(c.SQL)
		args = append(args, c.Args...)
	}
	return sb.String(), args, nil
}

// Rebind folds a hand-written statement with "?" markers into a dialect
func Rebind(d store.Dialect, kind store.Kind, sql string, args ...any) (store.Statement, error) {
	text, folded, err := fold([]Clause{C(sql, args...)})
	if err != nil {
		return store.Statement{}, err
	}
	return store.Statement{Kind: kind, Text: d.Rebind(text), Args: folded}, nil
}
