package authportal

import (
	"strings"
)

// A Subject is the identity making a request. It is produced by the
// authentication backend. The zero value is the anonymous subject, which is
// what an unauthenticated request carries.
type Subject struct {
	Username string
	Groups   []string
}

func (s Subject) IsAnonymous() bool {
	return s.Username == "" && len(s.Groups) == 0
}

// HasGroup returns true if the subject belongs to the named group.
func (s Subject) HasGroup(name string) bool {
	for _, g := range s.Groups {
		if g == name {
			return true
		}
	}
	return false
}

const (
	subjectPrefixUser  = "user:"
	subjectPrefixGroup = "group:"
)

type subjectSelectorKind int

const (
	selectUser subjectSelectorKind = iota
	selectGroup
)

// A SubjectSelector is one parsed "user:<name>" or "group:<name>" entry from
// a rule's subject list. Selectors are parsed once, at configuration
// normalization time, so that per-request matching never re-parses strings.
type SubjectSelector struct {
	kind subjectSelectorKind
	name string
}

// ParseSubjectSelector parses a configured selector string. ok is false when
// the string carries neither the user: nor the group: prefix; such strings
// are rejected at configuration validation time and must never reach the
// per-request matcher.
func ParseSubjectSelector(raw string) (SubjectSelector, bool) {
	if strings.HasPrefix(raw, subjectPrefixUser) {
		return SubjectSelector{kind: selectUser, name: raw[len(subjectPrefixUser):]}, true
	}
	if strings.HasPrefix(raw, subjectPrefixGroup) {
		return SubjectSelector{kind: selectGroup, name: raw[len(subjectPrefixGroup):]}, true
	}
	return SubjectSelector{}, false
}

// Matches is exact and case-sensitive for both variants.
func (sel SubjectSelector) Matches(subject *Subject) bool {
	switch sel.kind {
	case selectUser:
		return subject.Username == sel.name
	default:
		return subject.HasGroup(sel.name)
	}
}

func (sel SubjectSelector) String() string {
	if sel.kind == selectUser {
		return subjectPrefixUser + sel.name
	}
	return subjectPrefixGroup + sel.name
}

// subjectMatches implements the rule subject predicate: an empty selector
// list is unrestricted (matches any subject, including anonymous), otherwise
// any one selector matching is enough.
func subjectMatches(selectors []SubjectSelector, subject *Subject) bool {
	if len(selectors) == 0 {
		return true
	}
	for _, sel := range selectors {
		if sel.Matches(subject) {
			return true
		}
	}
	return false
}
