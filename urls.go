package authportal

import (
	"strings"
)

/*
ExtractDomain isolates the host portion of a URL or Host-header value.

It accepts absolute URLs (scheme://host[:port][/path][?query]) as well as
bare host[:port] strings. The scheme (http or https only), port, path, query
and fragment are all stripped.

ok is false when no host-like token can be isolated (eg the empty string, or
a scheme with nothing after it). Callers must treat that as "does not match" /
"not safe" - never as something to work around.

Note that we deliberately walk the string from the front, instead of hunting
for the first host-like substring anywhere in the input. Requests observed in
production carry nested redirect URLs in their query strings
(...?rd=https://other.host), and a substring hunt would extract the nested,
attacker-controlled host.
*/
func ExtractDomain(raw string) (string, bool) {
	host := raw
	if strings.HasPrefix(host, "https://") {
		host = host[len("https://"):]
	} else if strings.HasPrefix(host, "http://") {
		host = host[len("http://"):]
	}
	// Anything from the first path/query/fragment separator onwards is not
	// part of the host.
	if i := strings.IndexAny(host, "/?#"); i != -1 {
		host = host[:i]
	}
	// Trailing :port
	if i := strings.IndexByte(host, ':'); i != -1 {
		host = host[:i]
	}
	if host == "" {
		return "", false
	}
	return host, true
}
