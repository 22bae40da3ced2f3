package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/veilhq/veil/internal/logger"
	"go.uber.org/zap"
)

const maskRune = '*'

// Engine applies the pattern catalog to text and structured values.
// All operations are pure over their inputs; the engine holds no
// per-invocation state.
type Engine struct {
	rules  []Rule
	tokens TokenStore
	logger *logger.Logger
}

// New creates an engine over the default catalog with an in-memory
// token store.
func New(log *logger.Logger) *Engine {
	e := &Engine{
		rules:  catalog,
		tokens: NewMemoryTokens(),
		logger: log,
	}

	log.Info("PII engine initialized", zap.Int("rules", len(e.rules)))
	return e
}

// SetTokenStore replaces the engine's token store. Intended for wiring
// a durable vault at startup, before the engine is shared.
func (e *Engine) SetTokenStore(ts TokenStore) {
	if ts != nil {
		e.tokens = ts
	}
}

// MaskText applies every catalog rule in order, replacing all
// non-overlapping matches with that category's masking function.
// Returns the input unchanged when empty. Deterministic for fixed
// input and options.
func (e *Engine) MaskText(text string, opts Options) string {
	return e.MaskTextFiltered(text, opts, nil)
}

// MaskTextFiltered is the context-aware variant: categories for which
// include returns false are skipped. A nil include applies every
// category, which is the behavior the network boundary relies on.
func (e *Engine) MaskTextFiltered(text string, opts Options, include func(Category) bool) string {
	if text == "" {
		return text
	}

	masked := text
	for _, rule := range e.rules {
		if include != nil && !include(rule.Category) {
			continue
		}

		count := 0
		masked = rule.Pattern.ReplaceAllStringFunc(masked, func(match string) string {
			count++
			return e.maskMatch(rule, match, opts)
		})

		if count > 0 {
			e.logger.Debug("PII masked",
				zap.String("category", string(rule.Category)),
				zap.Int("count", count),
				zap.String("strategy", string(opts.Strategy)),
			)
		}
	}

	return masked
}

// ContainsSensitiveData reports whether any rule matches anywhere in
// text. Short-circuits on the first match and never mutates input.
func (e *Engine) ContainsSensitiveData(text string) bool {
	if text == "" {
		return false
	}
	for _, rule := range e.rules {
		if rule.Pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Classify runs every rule independently against the original text and
// reports the matching categories in catalog order, without duplicates.
func (e *Engine) Classify(text string) Classification {
	var c Classification
	if text == "" {
		return c
	}
	for _, rule := range e.rules {
		if rule.Pattern.MatchString(text) {
			c.Categories = append(c.Categories, rule.Category)
		}
	}
	c.HasMatch = len(c.Categories) > 0
	return c
}

// Findings counts per-category matches against the original text.
// Matched substrings are never returned.
func (e *Engine) Findings(text string) []Finding {
	var findings []Finding
	if text == "" {
		return findings
	}
	for _, rule := range e.rules {
		matches := rule.Pattern.FindAllStringIndex(text, -1)
		if len(matches) > 0 {
			findings = append(findings, Finding{Category: rule.Category, Count: len(matches)})
		}
	}
	return findings
}

// MaskValue recursively masks a JSON-like structure: string leaves go
// through MaskText, sequences and maps are walked, every other value
// passes through unchanged. Never fails for well-formed input.
func (e *Engine) MaskValue(v interface{}, opts Options) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return e.MaskText(val, opts)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = e.MaskValue(item, opts)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for key, item := range val {
			out[key] = e.MaskValue(item, opts)
		}
		return out
	default:
		return v
	}
}

// maskMatch rewrites a single matched substring according to the rule
// and options. Categories without a partial-reveal definition are
// always fully redacted, whatever strategy is configured.
func (e *Engine) maskMatch(rule Rule, match string, opts Options) string {
	if !rule.Partial {
		return redactMarker(rule.Category)
	}

	switch opts.Strategy {
	case StrategyHash:
		return "[HASH_" + markerTag(rule.Category) + "_" + digest(match, 8) + "]"
	case StrategyTokenize:
		return "[TOKEN_" + markerTag(rule.Category) + "_" + e.tokens.Issue(match) + "]"
	case StrategyPartial:
		return partialMask(match, opts)
	default:
		return redactMarker(rule.Category)
	}
}

// partialMask keeps opts.VisibleSuffix trailing characters visible and
// masks the rest. With PreserveFormat set, non-alphanumeric separators
// keep their original positions; otherwise they are masked too.
func partialMask(match string, opts Options) string {
	runes := []rune(match)
	out := make([]rune, len(runes))
	remaining := opts.VisibleSuffix

	for i := len(runes) - 1; i >= 0; i-- {
		r := runes[i]
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if remaining > 0 {
				out[i] = r
				remaining--
			} else {
				out[i] = maskRune
			}
			continue
		}
		if opts.PreserveFormat {
			out[i] = r
		} else {
			out[i] = maskRune
		}
	}

	return string(out)
}

func redactMarker(cat Category) string {
	return "[MASKED_" + markerTag(cat) + "]"
}

func markerTag(cat Category) string {
	return strings.ToUpper(string(cat))
}

// digest returns a short deterministic hex digest of text. Used for
// de-identified correlation, not cryptographic protection.
func digest(text string, chars int) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:chars]
}
