package pii

import "testing"

func TestMemoryTokens(t *testing.T) {
	tokens := NewMemoryTokens()

	t.Run("IssueIsDeterministic", func(t *testing.T) {
		first := tokens.Issue("123-45-6789")
		second := tokens.Issue("123-45-6789")
		if first != second {
			t.Errorf("same plaintext produced different tokens: %s vs %s", first, second)
		}
		if len(first) != 12 {
			t.Errorf("token length = %d, want 12", len(first))
		}
	})

	t.Run("LookupRoundTrip", func(t *testing.T) {
		token := tokens.Issue("jane@example.com")
		got, ok := tokens.Lookup(token)
		if !ok {
			t.Fatal("token not found after Issue")
		}
		if got != "jane@example.com" {
			t.Errorf("Lookup() = %q, want %q", got, "jane@example.com")
		}
	})

	t.Run("UnknownToken", func(t *testing.T) {
		if _, ok := tokens.Lookup("000000000000"); ok {
			t.Error("Lookup returned a value for an unknown token")
		}
	})

	t.Run("DistinctPlaintexts", func(t *testing.T) {
		a := tokens.Issue("a@example.com")
		b := tokens.Issue("b@example.com")
		if a == b {
			t.Error("different plaintexts produced the same token")
		}
	})
}
