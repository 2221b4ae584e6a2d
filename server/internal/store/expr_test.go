package store

import (
	"testing"
	"time"
)

func TestCompileExpr_Match(t *testing.T) {
	r := Record{ID: "id-1", ServiceName: "auth-service", Message: "Failed login attempt", Timestamp: base}
	now := base.Add(10 * time.Minute)

	cases := []struct {
		expr string
		want bool
	}{
		{`service_name == "auth-service"`, true},
		{`service_name.startsWith("pay")`, false},
		{`message.contains("Failed") && id == "id-1"`, true},
		{`timestamp > now - duration("5m")`, false},
		{`timestamp >= timestamp("2025-03-17T10:00:00Z")`, true},
		{`size(message) > 100`, false},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			e, err := CompileExpr(tc.expr)
			if err != nil {
				t.Fatalf("CompileExpr: %v", err)
			}
			if got := e.Match(r, now); got != tc.want {
				t.Errorf("Match: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCompileExpr_Errors(t *testing.T) {
	for _, src := range []string{
		"",
		"service_name ==",
		`service_name + "x"`,
		`unknown_var == 1`,
	} {
		if _, err := CompileExpr(src); !IsValidation(err) {
			t.Errorf("CompileExpr(%q): got %v, want validation error", src, err)
		}
	}
}
