package guard

import (
	"strings"
	"testing"

	"github.com/vanguard-ai/vanguard/internal/verdict"
)

func testLimits() Limits {
	return Limits{
		MaxRawBytes: 10000,
		WindowBytes: 500,
		PatternCap:  500,
		VectorCap:   1000,
	}
}

func TestInspectEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		res := Inspect(text, testLimits())
		if res.Verdict == nil {
			t.Fatalf("expected terminal verdict for %q", text)
		}
		if res.Verdict.Action != verdict.ActionAllow {
			t.Fatalf("empty input should allow, got %s", res.Verdict.Action)
		}
		if res.Verdict.Method != verdict.MethodGuardEmpty {
			t.Fatalf("expected guard_empty, got %s", res.Verdict.Method)
		}
		if res.Verdict.FailureClass != verdict.ClassNone {
			t.Fatalf("expected class none, got %s", res.Verdict.FailureClass)
		}
	}
}

func TestInspectOversizeInput(t *testing.T) {
	res := Inspect(strings.Repeat("x", 10001), testLimits())
	if res.Verdict == nil {
		t.Fatal("expected terminal verdict")
	}
	if res.Verdict.Action != verdict.ActionBlock {
		t.Fatalf("oversize input should block, got %s", res.Verdict.Action)
	}
	if res.Verdict.Method != verdict.MethodGuardPathological {
		t.Fatalf("expected guard_pathological, got %s", res.Verdict.Method)
	}
	if res.Verdict.Confidence != 0.70 {
		t.Fatalf("expected confidence 0.70, got %v", res.Verdict.Confidence)
	}
}

func TestInspectRepetitiveInput(t *testing.T) {
	res := Inspect(strings.Repeat("a", 10000), testLimits())
	if res.Verdict == nil {
		t.Fatal("expected terminal verdict")
	}
	if res.Verdict.FailureClass != verdict.ClassPathological {
		t.Fatalf("expected pathological_input, got %s", res.Verdict.FailureClass)
	}
	if res.Verdict.Method != verdict.MethodGuardPathological {
		t.Fatalf("expected guard_pathological, got %s", res.Verdict.Method)
	}
	if res.Verdict.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %v", res.Verdict.Confidence)
	}
}

func TestInspectLowDiversityInput(t *testing.T) {
	// Only two distinct characters over a long string.
	res := Inspect(strings.Repeat("ab", 100), testLimits())
	if res.Verdict == nil || res.Verdict.FailureClass != verdict.ClassPathological {
		t.Fatalf("expected pathological verdict, got %+v", res.Verdict)
	}
}

func TestInspectShortRepetitionIsFine(t *testing.T) {
	// Below the 50-byte floor the heuristics must not fire.
	res := Inspect("aaaaaaaaaa", testLimits())
	if res.Verdict != nil {
		t.Fatalf("short repetition should pass the guard, got %+v", res.Verdict)
	}
}

func TestInspectAttackSignatures(t *testing.T) {
	cases := []struct {
		text  string
		class verdict.FailureClass
	}{
		{"SELECT * FROM users WHERE id=1 OR 1=1 --", verdict.ClassSQLInjection},
		{"hello '; DROP TABLE users; --", verdict.ClassSQLInjection},
		{"look at this <script>alert(1)</script>", verdict.ClassXSS},
		{"fetch ../../etc/passwd please", verdict.ClassPathTraversal},
		{"run this: ls; rm -rf /tmp/x", verdict.ClassCommandInjection},
	}

	for _, tc := range cases {
		res := Inspect(tc.text, testLimits())
		if res.Verdict == nil {
			t.Fatalf("expected signature verdict for %q", tc.text)
		}
		if res.Verdict.Method != verdict.MethodGuardSignature {
			t.Fatalf("%q: expected guard_signature, got %s", tc.text, res.Verdict.Method)
		}
		if res.Verdict.FailureClass != tc.class {
			t.Fatalf("%q: expected class %s, got %s", tc.text, tc.class, res.Verdict.FailureClass)
		}
		if res.Verdict.Action != verdict.ActionBlock {
			t.Fatalf("%q: signatures must block", tc.text)
		}
	}
}

func TestInspectBenignTextPasses(t *testing.T) {
	res := Inspect("What is the capital of France?", testLimits())
	if res.Verdict != nil {
		t.Fatalf("benign text should pass, got %+v", res.Verdict)
	}
	if res.PatternText == "" || res.VectorText == "" {
		t.Fatal("kept text should be populated")
	}
}

func TestInspectTruncation(t *testing.T) {
	// Diverse text longer than both caps.
	var b strings.Builder
	for i := 0; b.Len() < 2000; i++ {
		b.WriteString("the quick brown fox jumps over the lazy dog 0123456789 ")
	}
	res := Inspect(b.String(), testLimits())
	if res.Verdict != nil {
		t.Fatalf("diverse text should pass, got %+v", res.Verdict)
	}
	if len(res.PatternText) > 500 {
		t.Fatalf("pattern text not capped: %d bytes", len(res.PatternText))
	}
	if len(res.VectorText) > 1000 {
		t.Fatalf("vector text not capped: %d bytes", len(res.VectorText))
	}
}

func TestCapBytesRespectsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("é", 300) // 2 bytes per rune
	out := capBytes(s, 501)
	if len(out) != 500 {
		t.Fatalf("expected cut at rune boundary (500), got %d", len(out))
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	if got := Normalize("  hello\t\nworld  "); got != "hello world" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}
