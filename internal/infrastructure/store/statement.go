package store

// Kind tags a statement so adapters never have to sniff its text
type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindDDL:
		return "ddl"
	}
	return "unknown"
}

// Statement is statement text plus its ordered arguments. Text uses the
// placeholder syntax of the dialect it was built for.
type Statement struct {
	Kind Kind
	Text string
	Args []any

	// Returning asks an insert to report the new row id as {"id": n}.
	// Only the id column is supported.
	Returning bool
}

// Select builds a read statement
func Select(text string, args ...any) Statement {
	return Statement{Kind: KindSelect, Text: text, Args: args}
}

// Insert builds an insert that does not report the new id
func Insert(text string, args ...any) Statement {
	return Statement{Kind: KindInsert, Text: text, Args: args}
}

// InsertReturningID builds an insert whose result row carries the new id
func InsertReturningID(text string, args ...any) Statement {
	return Statement{Kind: KindInsert, Text: text, Args: args, Returning: true}
}

// Update builds an update statement
func Update(text string, args ...any) Statement {
	return Statement{Kind: KindUpdate, Text: text, Args: args}
}

// Delete builds a delete statement
func Delete(text string, args ...any) Statement {
	return Statement{Kind: KindDelete, Text: text, Args: args}
}

// DDL builds a schema statement
func DDL(text string) Statement {
	return Statement{Kind: KindDDL, Text: text}
}

// Record is one row keyed by column name
type Record map[string]any

// Result is what every backend returns for Query
type Result struct {
	Rows         []Record
	RowsAffected int64
}

// First returns the first row, if any
func (r *Result) First() (Record, bool) {
	if r == nil || len(r.Rows) == 0 {
		return nil, false
	}
	return r.Rows[0], true
}
