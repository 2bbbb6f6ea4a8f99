package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// Spec is the declarative form of one pattern, as it appears in the policy
// source before compilation.
type Spec struct {
	ID         string               `yaml:"id"`
	Class      verdict.FailureClass `yaml:"class"`
	Expr       string               `yaml:"regex"`
	Confidence float64              `yaml:"confidence"`
	Anti       bool                 `yaml:"anti"` // anti-patterns decrease suspicion
}

// Pattern is a compiled matcher. Immutable after load.
type Pattern struct {
	ID         string
	Class      verdict.FailureClass
	Confidence float64
	Anti       bool

	re *regexp.Regexp
}

// Library is the full compiled pattern set plus the suspicious-token list
// used by the all-clear rule.
type Library struct {
	patterns   []Pattern
	suspicious []string
}

// NewLibrary compiles and validates a pattern set. Patterns that fail the
// structural safety check are a load error, not a skip: a bad pattern must
// never reach the matcher.
func NewLibrary(specs []Spec) (*Library, error) {
	patterns := make([]Pattern, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))

	for _, s := range specs {
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("pattern with empty id (class %s)", s.Class)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate pattern id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if !verdict.Known(s.Class) {
			return nil, fmt.Errorf("pattern %q references unknown class %q", s.ID, s.Class)
		}
		if s.Confidence <= 0 || s.Confidence > 1 {
			return nil, fmt.Errorf("pattern %q confidence %v outside (0, 1]", s.ID, s.Confidence)
		}
		if err := checkStructure(s.Expr); err != nil {
			return nil, fmt.Errorf("pattern %q rejected: %w", s.ID, err)
		}
		re, err := regexp.Compile(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %q does not compile: %w", s.ID, err)
		}
		patterns = append(patterns, Pattern{
			ID:         s.ID,
			Class:      s.Class,
			Confidence: s.Confidence,
			Anti:       s.Anti,
			re:         re,
		})
	}

	return &Library{
		patterns:   patterns,
		suspicious: suspiciousTokens,
	}, nil
}

// Len reports the number of compiled patterns.
func (l *Library) Len() int { return len(l.patterns) }

// checkStructure rejects expressions with an unbounded `.*` adjacent to an
// alternation group of size >= 2. Go's regexp is linear-time, so this is not
// a ReDoS guard; it keeps the library free of patterns whose match cost and
// semantics degrade badly, and stops the construct from creeping back in if
// the matcher is ever swapped.
func checkStructure(expr string) error {
	for i := 0; i+1 < len(expr); i++ {
		if expr[i] != '.' || expr[i+1] != '*' {
			continue
		}
		// `.*(`: group follows.
		if i+2 < len(expr) && expr[i+2] == '(' {
			if alternationArms(expr, i+2) >= 2 {
				return fmt.Errorf("unbounded `.*` before alternation group")
			}
		}
		// `).*`: group precedes.
		if i > 0 && expr[i-1] == ')' {
			if open := matchingOpen(expr, i-1); open >= 0 && alternationArms(expr, open) >= 2 {
				return fmt.Errorf("unbounded `.*` after alternation group")
			}
		}
	}
	return nil
}

// alternationArms counts top-level `|` arms of the group opening at open.
func alternationArms(expr string, open int) int {
	depth := 0
	arms := 1
	for i := open; i < len(expr); i++ {
		switch expr[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return arms
			}
		case '|':
			if depth == 1 {
				arms++
			}
		}
	}
	return 0
}

// matchingOpen finds the index of the `(` matching the `)` at close.
func matchingOpen(expr string, close int) int {
	depth := 0
	for i := close; i >= 0; i-- {
		switch expr[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				if i > 0 && expr[i-1] == '\\' {
					return -1
				}
				return i
			}
		}
	}
	return -1
}

// suspiciousTokens are cheap substring markers. A payload containing none of
// them, and matching no pattern, is considered clear at tier 1.
var suspiciousTokens = []string{
	"ignore",
	"disregard",
	"instructions",
	"system prompt",
	"jailbreak",
	"bypass",
	"pretend",
	"roleplay",
	"hypothetically",
	"no restrictions",
	"uncensored",
	"definitely cures",
	"guaranteed",
	"100%",
	"always true",
	"studies show",
	"everyone knows",
	"drop table",
	"select ",
	"<script",
	"../",
}

// Builtin returns the default pattern set shipped with the binary. The
// policy source may append to it or override thresholds, but these stay
// available even with no policy file at all.
func Builtin() []Spec {
	return []Spec{
		{
			ID:         "pi.ignore_instructions",
			Class:      verdict.ClassPromptInjection,
			Expr:       `(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules|directives)`,
			Confidence: 0.95,
		},
		{
			ID:         "pi.reveal_system",
			Class:      verdict.ClassPromptInjection,
			Expr:       `(?i)(reveal|show|print|repeat|output)\s+(your\s+|the\s+)?(hidden\s+)?(system\s+prompt|initial\s+instructions)`,
			Confidence: 0.92,
		},
		{
			ID:         "pi.new_persona",
			Class:      verdict.ClassPromptInjection,
			Expr:       `(?i)you\s+are\s+(now|no\s+longer)\s+`,
			Confidence: 0.70,
		},
		{
			ID:         "pi.jailbreak",
			Class:      verdict.ClassPromptInjection,
			Expr:       `(?i)\b(jailbreak|do\s+anything\s+now|dan\s+mode|developer\s+mode)\b`,
			Confidence: 0.90,
		},
		{
			ID:         "pi.hypothetical_bypass",
			Class:      verdict.ClassPromptInjection,
			Expr:       `(?i)hypothetically.{0,40}\b(no|without)\s+(restrictions|rules|limits|filters)`,
			Confidence: 0.55,
		},
		{
			ID:         "pi.bypass_safety",
			Class:      verdict.ClassPromptInjection,
			Expr:       `(?i)bypass\s+(safety|content\s+filter|moderation|guardrails?)`,
			Confidence: 0.90,
		},
		{
			ID:         "oc.absolute_claim",
			Class:      verdict.ClassOverconfidence,
			Expr:       `(?i)\b(definitely|certainly|absolutely|guaranteed)\b.{0,60}\b(cures?|works?|true|proven|safe)\b`,
			Confidence: 0.60,
		},
		{
			ID:         "oc.total_rate",
			Class:      verdict.ClassOverconfidence,
			Expr:       `(?i)\b(100%|every\s+single|all)\s+(of\s+the\s+)?(cases|patients|users|time)\b`,
			Confidence: 0.55,
		},
		{
			ID:         "ff.fabricated_study",
			Class:      verdict.ClassFabricatedFact,
			Expr:       `(?i)studies\s+(show|prove|confirm)\b.{0,80}\b(definitely|100%|always|cures?)\b`,
			Confidence: 0.60,
		},
		{
			ID:         "mg.no_source_claim",
			Class:      verdict.ClassMissingGrounding,
			Expr:       `(?i)\b(it\s+is\s+a\s+known\s+fact|everyone\s+knows|science\s+says)\b`,
			Confidence: 0.50,
		},
		{
			ID:         "tox.slur_threat",
			Class:      verdict.ClassToxicity,
			Expr:       `(?i)\b(kill\s+(you|yourself)|i\s+hate\s+you|worthless\s+(idiot|moron))\b`,
			Confidence: 0.88,
		},
		{
			ID:         "bias.group_claim",
			Class:      verdict.ClassBias,
			Expr:       `(?i)\b(all|every)\s+(women|men|immigrants|foreigners)\s+(are|can'?t|cannot)\b`,
			Confidence: 0.65,
		},
		// Anti-patterns: well-formed citations lower suspicion.
		{
			ID:         "anti.citation_bracket",
			Class:      verdict.ClassNone,
			Expr:       `\[\d{1,3}\]|\(([A-Z][A-Za-z\-]+(\s+(&|and)\s+[A-Z][A-Za-z\-]+)?,?\s+(19|20)\d{2})\)`,
			Confidence: 0.88,
			Anti:       true,
		},
		{
			ID:         "anti.doi",
			Class:      verdict.ClassNone,
			Expr:       `(?i)\bdoi\s*:\s*10\.\d{4,9}/\S+`,
			Confidence: 0.90,
			Anti:       true,
		},
		{
			ID:         "anti.hedged_sources",
			Class:      verdict.ClassNone,
			Expr:       `(?i)according\s+to\s+(the\s+)?[A-Z][A-Za-z]+.{0,60}\b(may|might|suggests?|appears?)\b`,
			Confidence: 0.85,
			Anti:       true,
		},
	}
}
