package pii

import "regexp"

// The catalog is order-significant: rules are applied sequentially and
// each rewrites the running text, so a later rule operates on text that
// may already contain earlier rules' markers. Reordering changes output
// and is a behavioral contract, not an implementation detail. Markers
// are built so they can never re-match a rule (digit runs inside a
// marker are glued to word characters, which defeats the \b anchors).
var catalog = []Rule{
	{
		Category: CategoryEmail,
		Pattern:  regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		Partial:  true,
	},
	{
		// North-American formats: optional +1 country code, optional
		// parenthesized area code, 3-3-4 digit groups with space, dot
		// or hyphen separators. The area code is anchored: either a
		// literal paren pair or a word boundary before the first digit,
		// so the rule can never start matching inside a longer digit
		// run such as an unseparated payment-card number.
		Category: CategoryPhone,
		Pattern:  regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		Partial:  true,
	},
	{
		// 3-2-4 digit shape with optional hyphens (SSN-like).
		Category: CategoryNationalID,
		Pattern:  regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`),
		Partial:  true,
	},
	{
		// 13-16 digits, optionally grouped by spaces or hyphens.
		Category: CategoryPaymentCard,
		Pattern:  regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{1,4}\b`),
		Partial:  true,
	},
	{
		Category: CategoryPostalCode,
		Pattern:  regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`),
		Partial:  true,
	},
	{
		// Coarse heuristic: house number, street tokens with a common
		// suffix, comma, city, comma, 2-letter region, optional ZIP.
		// The ZIP is optional because the postal_code rule runs first
		// and may already have rewritten it. False negatives on
		// irregular formats are expected.
		Category: CategoryAddress,
		Pattern: regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Za-z'.-]+\s+){1,4}` +
			`(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Way|Court|Ct)\.?,` +
			`\s*[A-Za-z .'-]+,\s*[A-Z]{2}(?:\s+\d{5}(?:-\d{4})?)?\b`),
		Partial: false,
	},
	{
		// Honorific followed by two capitalized word tokens.
		Category: CategoryPersonName,
		Pattern:  regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][A-Za-z'-]+\s+[A-Z][A-Za-z'-]+\b`),
		Partial:  false,
	},
}

// Categories returns the recognized category tags in catalog order.
func Categories() []Category {
	tags := make([]Category, len(catalog))
	for i, rule := range catalog {
		tags[i] = rule.Category
	}
	return tags
}

// ValidCategory reports whether tag names a recognized category.
func ValidCategory(tag Category) bool {
	for _, rule := range catalog {
		if rule.Category == tag {
			return true
		}
	}
	return false
}
