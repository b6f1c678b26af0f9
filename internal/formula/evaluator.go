package formula

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
	"github.com/user/collector/internal/schema"
	"github.com/user/collector/internal/validate"
)

const (
	getDiffName = "get_diff"

	// trueDivide replaces "/" so that integer operands divide to a double
	trueDivide = "@true_divide"

	// defaultCostLimit bounds the work a single expression may do
	defaultCostLimit = 10000
)

var undeclaredRef = regexp.MustCompile(`undeclared reference to '([^']+)'`)

// Evaluator compiles and runs formula expressions
type Evaluator struct {
	inline    *cel.Env
	costLimit uint64
}

// NewEvaluator creates an evaluator with the restricted expression environment
func NewEvaluator() (*Evaluator, error) {
	opts := []cel.EnvOption{
		ext.Strings(),
		ext.Math(),
		cel.CrossTypeNumericComparisons(true),
	}
	env, err := cel.NewEnv(append(opts, numericPromotion()...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create formula environment: %w", err)
	}

	return &Evaluator{inline: env, costLimit: defaultCostLimit}, nil
}

// Inline evaluates an inline expression. Failures degrade to an error string.
func (e *Evaluator) Inline(expr string) string {
	out, err := e.run(e.inline, expr)
	if err != nil {
		return evaluationError(err)
	}
	return out
}

// Deferred evaluates a row-relative expression against table through q,
// which must see the row just written. It never returns an error: every
// failure becomes the cell value.
func (e *Evaluator) Deferred(ctx context.Context, q schema.Querier, table, expr string) string {
	env, err := e.inline.Extend(
		cel.Function(getDiffName,
			cel.Overload("get_diff_dyn_dyn",
				[]*cel.Type{cel.DynType, cel.DynType},
				cel.StringType,
				cel.BinaryBinding(func(column, offset ref.Val) ref.Val {
					return types.String(getDiff(ctx, q, table, column.Value(), offset.Value()))
				}),
			),
		),
	)
	if err != nil {
		return executionError(err)
	}

	checked, issues := compile(env, expr)
	if issues != nil && issues.Err() != nil {
		msg := issues.Err().Error()
		if m := undeclaredRef.FindStringSubmatch(msg); m != nil {
			return unknownFunction(m[1])
		}
		if strings.Contains(msg, "no matching overload for '"+getDiffName+"'") {
			return MsgGetDiffArgs
		}
		return syntaxError(issues.Err())
	}

	out, err := e.program(env, checked)
	if err != nil {
		return executionError(err)
	}
	return out
}

func (e *Evaluator) run(env *cel.Env, expr string) (string, error) {
	checked, issues := compile(env, expr)
	if issues != nil && issues.Err() != nil {
		return "", issues.Err()
	}
	return e.program(env, checked)
}

// compile parses expr, routes every division through trueDivide and
// type-checks the result
func compile(env *cel.Env, expr string) (*cel.Ast, *cel.Issues) {
	parsed, issues := env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues
	}

	factory := celast.NewExprFactory()
	celast.PostOrderVisit(parsed.NativeRep().Expr(), celast.NewExprVisitor(func(x celast.Expr) {
		if x.Kind() != celast.CallKind {
			return
		}
		call := x.AsCall()
		if call.FunctionName() != operators.Divide || call.IsMemberFunction() {
			return
		}
		x.SetKindCase(factory.NewCall(x.ID(), trueDivide, call.Args()...))
	}))

	return env.Check(parsed)
}

// numericPromotion declares mixed int/double arithmetic and true division,
// so that 1 + 0.5 is 1.5 and 10 / 4 is 2.5
func numericPromotion() []cel.EnvOption {
	mixed := func(function, prefix string, op func(a, b float64) float64) cel.EnvOption {
		binding := cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
			return types.Double(op(toFloat(lhs), toFloat(rhs)))
		})
		return cel.Function(function,
			cel.Overload(prefix+"_int_double", []*cel.Type{cel.IntType, cel.DoubleType}, cel.DoubleType, binding),
			cel.Overload(prefix+"_double_int", []*cel.Type{cel.DoubleType, cel.IntType}, cel.DoubleType, binding),
		)
	}

	divide := cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
		d := toFloat(rhs)
		if d == 0 {
			return types.NewErr("division by zero")
		}
		return types.Double(toFloat(lhs) / d)
	})

	return []cel.EnvOption{
		mixed(operators.Add, "promote_add", func(a, b float64) float64 { return a + b }),
		mixed(operators.Subtract, "promote_subtract", func(a, b float64) float64 { return a - b }),
		mixed(operators.Multiply, "promote_multiply", func(a, b float64) float64 { return a * b }),
		cel.Function(trueDivide,
			cel.Overload("true_divide_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.DoubleType, divide),
			cel.Overload("true_divide_int_double", []*cel.Type{cel.IntType, cel.DoubleType}, cel.DoubleType, divide),
			cel.Overload("true_divide_double_int", []*cel.Type{cel.DoubleType, cel.IntType}, cel.DoubleType, divide),
			cel.Overload("true_divide_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType, divide),
		),
	}
}

func toFloat(v ref.Val) float64 {
	switch x := v.(type) {
	case types.Int:
		return float64(x)
	case types.Uint:
		return float64(x)
	case types.Double:
		return float64(x)
	default:
		return 0
	}
}

func (e *Evaluator) program(env *cel.Env, ast *cel.Ast) (string, error) {
	prg, err := env.Program(ast, cel.CostLimit(e.costLimit))
	if err != nil {
		return "", err
	}

	val, _, err := prg.Eval(cel.NoVars())
	if err != nil {
		return "", err
	}
	if types.IsError(val) {
		return "", errors.New(fmt.Sprint(val))
	}

	return format(val.Value()), nil
}

func format(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// getDiff returns latest minus the value offset rows back, formatted with a
// sign and two decimals. Rows are ordered by identity, newest first.
func getDiff(ctx context.Context, q schema.Querier, table string, column, offset any) string {
	col, ok := column.(string)
	if !ok || validate.ValidateIdentifier(col) != nil {
		return MsgInvalidColumn
	}
	n, ok := offset.(int64)
	if !ok || n < 1 {
		return MsgInvalidOffset
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT ?",
		schema.Quote(col), schema.Quote(table), schema.Quote(schema.IdentityColumn))
	rows, err := q.QueryContext(ctx, query, n+1)
	if err != nil {
		return executionError(err)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return executionError(err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return executionError(err)
	}

	if int64(len(values)) < n+1 {
		return NeutralDiff
	}

	latest, ok := numeric(values[0])
	if !ok {
		return MsgNonNumericData
	}
	previous, ok := numeric(values[n])
	if !ok {
		return MsgNonNumericData
	}

	return fmt.Sprintf("%+.2f", latest-previous)
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case []byte:
		return parseNumber(string(x))
	case string:
		return parseNumber(x)
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
