package store

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Expr is a compiled CEL predicate evaluated against each record that passes
// the structured filters. Variables: id, service_name, message (string),
// timestamp and now (timestamp).
//
//	service_name.startsWith("auth") && message.contains("failed")
//	timestamp > now - duration("15m")
type Expr struct {
	src  string
	prog cel.Program
}

// CompileExpr parses and type-checks src. The expression must evaluate to a bool.
func CompileExpr(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, invalid("expr", "empty expression")
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("service_name", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, invalid("expr", iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, invalid("expr", "expression must evaluate to bool, got "+ast.OutputType().String())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, invalid("expr", err.Error())
	}
	return &Expr{src: src, prog: prog}, nil
}

// String returns the source text of the expression.
func (e *Expr) String() string { return e.src }

// Match evaluates the predicate for rec. Evaluation errors count as no match.
func (e *Expr) Match(rec Record, now time.Time) bool {
	out, _, err := e.prog.Eval(map[string]any{
		"id":           rec.ID,
		"service_name": rec.ServiceName,
		"message":      rec.Message,
		"timestamp":    rec.Timestamp,
		"now":          now,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
