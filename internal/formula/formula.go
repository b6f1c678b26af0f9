// Package formula evaluates the formula column language: the current
// timestamp token, inline expressions resolved before the row is written,
// and deferred row-relative expressions resolved after it.
//
// Expressions are CEL. The inline environment exposes arithmetic plus the
// string and math extensions and nothing from the engine; the deferred
// environment adds get_diff.
package formula

import (
	"fmt"
	"strings"
)

// Formula payload markers
const (
	TokenNow       = "now"
	PrefixInline   = "eval:"
	PrefixDeferred = "db_eval:"
)

// Kind classifies a formula payload
type Kind int

const (
	// KindLiteral payloads are stored verbatim
	KindLiteral Kind = iota
	// KindNow resolves to the run timestamp
	KindNow
	// KindInline is evaluated before the row is written
	KindInline
	// KindDeferred is evaluated after the row is written
	KindDeferred
)

func (k Kind) String() string {
	switch k {
	case KindNow:
		return "now"
	case KindInline:
		return "inline"
	case KindDeferred:
		return "deferred"
	default:
		return "literal"
	}
}

// Formula is a classified formula payload
type Formula struct {
	Kind Kind
	// Expr is the expression body with its prefix removed, or the raw
	// payload for literals.
	Expr string
}

// Parse classifies a formula payload. Markers are case-insensitive.
func Parse(payload string) Formula {
	lower := strings.ToLower(payload)

	switch {
	case lower == TokenNow:
		return Formula{Kind: KindNow}
	case strings.HasPrefix(lower, PrefixDeferred):
		return Formula{Kind: KindDeferred, Expr: strings.TrimSpace(payload[len(PrefixDeferred):])}
	case strings.HasPrefix(lower, PrefixInline):
		return Formula{Kind: KindInline, Expr: payload[len(PrefixInline):]}
	default:
		return Formula{Kind: KindLiteral, Expr: payload}
	}
}

// Degraded results written into a cell instead of failing the run
const (
	MsgNonNumericData = "non-numeric or insufficient data"
	MsgGetDiffArgs    = "get_diff requires 2 parameters (column, offset)"
	MsgInvalidColumn  = "invalid column name"
	MsgInvalidOffset  = "offset must be a positive integer"
	// NeutralDiff is the get_diff result when there are not enough rows
	NeutralDiff = "0.00"
)

func evaluationError(err error) string {
	return fmt.Sprintf("formula error: %v", err)
}

func syntaxError(err error) string {
	return fmt.Sprintf("formula syntax error: %v", err)
}

func executionError(err error) string {
	return fmt.Sprintf("formula execution error: %v", err)
}

func unknownFunction(name string) string {
	return fmt.Sprintf("unknown function: %s", name)
}
