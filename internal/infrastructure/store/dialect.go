package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour a statement targets
type Dialect int

const (
	DialectPostgres Dialect = iota + 1
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	}
	return "unknown"
}

// Placeholder returns the marker for the n-th (1-based) argument
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Rebind rewrites neutral "?" markers into this dialect's placeholders,
// numbering them in order of occurrence. Quoted literals are left alone.
func (d Dialect) Rebind(text string) string {
	if d != DialectPostgres {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	n := 0
	scanOutsideQuotes(text, func(i int, c byte) {
		if c == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			return
		}
		b.WriteByte(c)
	}, func(segment string) {
		b.WriteString(segment)
	})
	return b.String()
}

// Bool returns the boolean literal for this dialect
func (d Dialect) Bool(v bool) string {
	if d == DialectPostgres {
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	if v {
		return "1"
	}
	return "0"
}

// ILike returns the case-insensitive LIKE operator. SQLite's LIKE already
// ignores ASCII case.
func (d Dialect) ILike() string {
	if d == DialectPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

// JSONText renders a JSON column as text for pattern matching
func (d Dialect) JSONText(column string) string {
	if d == DialectPostgres {
		return column + "::text"
	}
	return column
}

// JSONParam casts a bound parameter into the JSON column type
func (d Dialect) JSONParam(placeholder string) string {
	if d == DialectPostgres {
		return placeholder + "::jsonb"
	}
	return placeholder
}

// ValidateArgs checks that text carries exactly len(args) placeholders.
// For numbered dialects the highest index must equal the argument count and
// every index up to it must appear.
func (d Dialect) ValidateArgs(text string, args int) error {
	if d == DialectPostgres {
		seen := map[int]bool{}
		highest := 0
		scanOutsideQuotes(text, func(i int, c byte) {
			if c != '$' || i+1 >= len(text) || !isDigit(text[i+1]) {
				return
			}
			j := i + 1
			for j < len(text) && isDigit(text[j]) {
				j++
			}
			n, _ := strconv.Atoi(text[i+1 : j])
			seen[n] = true
			if n > highest {
				highest = n
			}
		}, nil)
		if highest != args || len(seen) != highest {
			return fmt.Errorf("%w: %d placeholders (highest $%d) for %d arguments", ErrMalformed, len(seen), highest, args)
		}
		return nil
	}

	count := 0
	scanOutsideQuotes(text, func(i int, c byte) {
		if c == '?' {
			count++
		}
	}, nil)
	if count != args {
		return fmt.Errorf("%w: %d placeholders for %d arguments", ErrMalformed, count, args)
	}
	return nil
}

// CountMarkers counts neutral "?" markers outside quoted literals
func CountMarkers(text string) int {
	count := 0
	scanOutsideQuotes(text, func(i int, c byte) {
		if c == '?' {
			count++
		}
	}, nil)
	return count
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// scanOutsideQuotes calls visit for each byte outside '...' and "..." and
// hands quoted segments (quotes included) to quoted, when non-nil.
func scanOutsideQuotes(text string, visit func(i int, c byte), quoted func(segment string)) {
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\'' && c != '"' {
			visit(i, c)
			continue
		}

		start := i
		i++
		for i < len(text) {
			if text[i] == c {
				// doubled quote is an escaped quote
				if i+1 < len(text) && text[i+1] == c {
					i += 2
					continue
				}
				break
			}
			i++
		}
		end := i + 1
		if end > len(text) {
			end = len(text)
		}
		if quoted != nil {
			quoted(text[start:end])
		}
	}
}
