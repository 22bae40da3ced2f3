package pii

import "regexp"

// Category identifies a class of sensitive data recognized by the catalog.
type Category string

const (
	CategoryEmail       Category = "email"
	CategoryPhone       Category = "phone"
	CategoryNationalID  Category = "national_id"
	CategoryPaymentCard Category = "payment_card"
	CategoryPostalCode  Category = "postal_code"
	CategoryAddress     Category = "address"
	CategoryPersonName  Category = "person_name"
)

// Rule pairs a category with its detection pattern. Rules are immutable
// after process start; detection never mutates the rule set itself.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
	// Partial reports whether the category has a partial-reveal
	// definition. Categories without one are always fully redacted,
	// whatever strategy the caller configured.
	Partial bool
}

// StrategyKind selects how a matched substring is rewritten.
type StrategyKind string

const (
	// StrategyRedact replaces the whole match with a bracketed
	// category marker.
	StrategyRedact StrategyKind = "redact"
	// StrategyHash embeds a short deterministic digest of the match,
	// for de-identified correlation. Not cryptographic protection.
	StrategyHash StrategyKind = "hash"
	// StrategyTokenize issues an opaque, reversible token through the
	// engine's token store.
	StrategyTokenize StrategyKind = "tokenize"
	// StrategyPartial keeps a configurable suffix of the match visible
	// and masks the rest.
	StrategyPartial StrategyKind = "partial"
)

// Options parameterizes a single masking invocation. Values are
// constructed fresh per call and never shared mutable state.
type Options struct {
	Strategy StrategyKind `json:"strategy"`
	// PreserveFormat keeps non-alphanumeric separators of the original
	// match in their original positions under partial reveal.
	PreserveFormat bool `json:"preserve_format"`
	// VisibleSuffix is the number of trailing characters (digits, for
	// numeric categories) left unmasked under partial reveal.
	VisibleSuffix int `json:"visible_suffix"`
}

// Classification reports which categories matched a text.
type Classification struct {
	HasMatch   bool       `json:"has_match"`
	Categories []Category `json:"categories"`
}

// Finding summarizes the matches of one category in a text. The matched
// substrings themselves are never carried, only the tag and count.
type Finding struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}
