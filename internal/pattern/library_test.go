package pattern

import (
	"strings"
	"testing"

	"github.com/vanguard-ai/vanguard/internal/verdict"
)

func TestNewLibraryCompilesBuiltins(t *testing.T) {
	lib, err := NewLibrary(Builtin())
	if err != nil {
		t.Fatalf("builtin patterns must compile: %v", err)
	}
	if lib.Len() == 0 {
		t.Fatal("builtin library is empty")
	}
}

func TestNewLibraryRejectsGreedyAlternation(t *testing.T) {
	cases := []string{
		`.*(foo|bar)`,
		`(foo|bar).*`,
		`prefix .*(a|b|c) suffix`,
	}
	for _, expr := range cases {
		_, err := NewLibrary([]Spec{{
			ID:         "bad",
			Class:      verdict.ClassPromptInjection,
			Expr:       expr,
			Confidence: 0.9,
		}})
		if err == nil {
			t.Fatalf("expected structural rejection for %q", expr)
		}
		if !strings.Contains(err.Error(), "rejected") {
			t.Fatalf("error should mention rejection, got %v", err)
		}
	}
}

func TestNewLibraryAcceptsBoundedAlternation(t *testing.T) {
	ok := []string{
		`.{0,40}(foo|bar)`,    // bounded repeat before alternation
		`(foo|bar)\s+baz`,     // alternation without .*
		`.*foo`,               // .* without an adjacent alternation group
		`(foo).*`,             // single-arm group
		`(?i)(a|b)\s+c.{0,5}`, // bounded tail
	}
	for _, expr := range ok {
		_, err := NewLibrary([]Spec{{
			ID:         "ok",
			Class:      verdict.ClassPromptInjection,
			Expr:       expr,
			Confidence: 0.9,
		}})
		if err != nil {
			t.Fatalf("%q should be accepted: %v", expr, err)
		}
	}
}

func TestNewLibraryValidation(t *testing.T) {
	base := Spec{ID: "p1", Class: verdict.ClassToxicity, Expr: `foo`, Confidence: 0.5}

	t.Run("duplicate id", func(t *testing.T) {
		if _, err := NewLibrary([]Spec{base, base}); err == nil {
			t.Fatal("expected duplicate id error")
		}
	})
	t.Run("unknown class", func(t *testing.T) {
		s := base
		s.Class = "made_up"
		if _, err := NewLibrary([]Spec{s}); err == nil {
			t.Fatal("expected unknown class error")
		}
	})
	t.Run("bad confidence", func(t *testing.T) {
		s := base
		s.Confidence = 1.5
		if _, err := NewLibrary([]Spec{s}); err == nil {
			t.Fatal("expected confidence error")
		}
	})
	t.Run("bad regex", func(t *testing.T) {
		s := base
		s.Expr = `([unclosed`
		if _, err := NewLibrary([]Spec{s}); err == nil {
			t.Fatal("expected compile error")
		}
	})
}
