package authportal

import (
	"strings"
)

/*
ResolveRedirect decides which URL a freshly authenticated session is actually
sent to. candidate is the user-supplied "redirect" query parameter, fallback
is the portal's own landing URL, and protectedRootDomain is the root domain
this portal protects.

The candidate is honoured only when its host ends with protectedRootDomain.
Anything else - a foreign host, a malformed URL, an empty candidate - silently
yields the fallback. We never surface an error to the end user here, because
echoing back an attacker-supplied URL would itself be a disclosure problem.

The safety test is the same trailing-substring comparison the product has
always used: the root domain must occur in the extracted host, with the match
ending exactly at the end of the host. Note that this does not require a label
boundary ('.') before the match, so a host such as "evilexample.com" passes
against a root of "example.com". Deployments rely on the current semantics for
non-dotted registrable roots, so do not tighten this without a product
decision. See TestResolveRedirectSuffixLooseness, which pins the behavior.
*/
func ResolveRedirect(candidate, fallback, protectedRootDomain string) string {
	if candidate == "" {
		return fallback
	}
	host, ok := ExtractDomain(candidate)
	if !ok {
		return fallback
	}
	if !belongsToDomain(host, protectedRootDomain) {
		return fallback
	}
	return candidate
}

// belongsToDomain returns true if rootDomain is a trailing substring of host.
func belongsToDomain(host, rootDomain string) bool {
	idx := strings.Index(host, rootDomain)
	return idx != -1 && idx+len(rootDomain) == len(host)
}
