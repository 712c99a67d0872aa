package authportal

import (
	"net"
	"regexp"
	"strings"
	"sync/atomic"
)

// A Rule is one entry in the ACL. Every field except Policy is a predicate
// over the incoming request; an empty Resources/Methods/Networks/Subjects
// list means "unrestricted". Domains is the exception: a rule with no domains
// matches nothing. Rules are immutable once the configuration is normalized.
type Rule struct {
	Domains   []string // lower-case; a leading "*." segment is a wildcard
	Resources []*regexp.Regexp
	Subjects  []SubjectSelector
	Methods   []string // upper-case
	Networks  []*net.IPNet
	Policy    PolicyLevel
}

// A RequestContext describes one inbound request to the policy engine. It is
// built by the forward-auth middleware, used for a single Evaluate call, and
// discarded. The subject and client address must already have been resolved
// by the caller; the engine itself never performs I/O.
type RequestContext struct {
	TargetDomain  string
	Path          string
	Method        string
	ClientAddress net.IP
	Subject       Subject
}

// An ACLConfiguration is the normalized, validated form of the ACL: the
// ordered rule list plus the default policy that applies when no rule
// matches. Rule order is authoritative. The configuration is read-only for
// as long as a PolicyEngine holds it; a reload builds a new one and swaps it
// in wholesale.
type ACLConfiguration struct {
	DefaultPolicy PolicyLevel
	Rules         []Rule
}

// domainMatches returns true if any configured domain pattern matches the
// target. A pattern of the form "*.suffix" matches the apex domain "suffix"
// itself as well as any subdomain of it; any other pattern requires exact
// equality. Comparison is case-insensitive (patterns are lower-cased at
// normalization time).
func domainMatches(patterns []string, targetDomain string) bool {
	target := strings.ToLower(targetDomain)
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "*.") {
			apex := pattern[2:]
			if target == apex || strings.HasSuffix(target, "."+apex) {
				return true
			}
		} else if target == pattern {
			return true
		}
	}
	return false
}

// resourceMatches requires a full-string match. The expressions are anchored
// when compiled (see NormalizeACL), so that a pattern like "/admin.*" cannot
// be satisfied by "/public/admin" - substring search here would be a
// partial-path bypass.
func resourceMatches(resources []*regexp.Regexp, path string) bool {
	if len(resources) == 0 {
		return true
	}
	for _, re := range resources {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func methodMatches(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	method = strings.ToUpper(method)
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

// networkMatches fails closed: if the rule names networks but the caller
// could not resolve a client address, the rule does not match.
func networkMatches(networks []*net.IPNet, addr net.IP) bool {
	if len(networks) == 0 {
		return true
	}
	if addr == nil {
		return false
	}
	for _, network := range networks {
		if network.Contains(addr) {
			return true
		}
	}
	return false
}

// ruleMatches is the conjunction of all five rule predicates. The predicates
// run cheap-to-expensive: domain first, because it eliminates most rules with
// a plain string compare; subject last, because its cost grows with the
// subject's group list.
func ruleMatches(rule *Rule, ctx *RequestContext) bool {
	return domainMatches(rule.Domains, ctx.TargetDomain) &&
		resourceMatches(rule.Resources, ctx.Path) &&
		methodMatches(rule.Methods, ctx.Method) &&
		networkMatches(rule.Networks, ctx.ClientAddress) &&
		subjectMatches(rule.Subjects, &ctx.Subject)
}

/*
A PolicyEngine holds the ACL and answers, for every inbound request, what
authentication level that request requires.

Evaluate is pure: identical (configuration, context) pairs always yield
identical answers, which is what makes concurrent per-request evaluation safe
without any locking. The configuration is held behind an atomic pointer;
Replace swaps in a complete new configuration and never mutates the old one,
so requests that are mid-evaluation keep reading a consistent rule list.
*/
type PolicyEngine struct {
	config atomic.Pointer[ACLConfiguration]
}

func NewPolicyEngine(config *ACLConfiguration) *PolicyEngine {
	e := &PolicyEngine{}
	e.config.Store(config)
	return e
}

// Evaluate scans the rules in declaration order and returns the policy of
// the first rule that matches, or the default policy if none does.
//
// There is no "deny wins" or "most specific wins" special case. First match
// wins regardless of policy value - that is the auditable tie-break the
// product guarantees, and administrators control precedence purely by rule
// order.
func (e *PolicyEngine) Evaluate(ctx *RequestContext) PolicyLevel {
	config := e.config.Load()
	for i := range config.Rules {
		if ruleMatches(&config.Rules[i], ctx) {
			return config.Rules[i].Policy
		}
	}
	return config.DefaultPolicy
}

// Config returns the configuration the engine is currently evaluating
// against. Callers must treat it as read-only.
func (e *PolicyEngine) Config() *ACLConfiguration {
	return e.config.Load()
}

// Replace atomically swaps in a new configuration. In-flight evaluations
// finish against the configuration they started with.
func (e *PolicyEngine) Replace(config *ACLConfiguration) {
	e.config.Store(config)
}
