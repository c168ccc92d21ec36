package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"ab":                "***",
		"alice":             "a…e",
		"Alice@Example.com": "a…@e….com",
		"a@x.io":            "a@x.io",
	}
	for in, want := range cases {
		if got := maskEmail(in); got != want {
			t.Errorf("maskEmail(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestFrom_FallsBackToSingleton(t *testing.T) {
	prev := Replace(zap.NewNop())
	defer Replace(prev)

	if From(context.Background()) != L() {
		t.Fatal("From without logger in ctx must return the singleton")
	}
	scoped := zap.NewNop().Named("scoped")
	ctx := ToContext(context.Background(), scoped)
	if From(ctx) != scoped {
		t.Fatal("From must return the logger stored in ctx")
	}
}
