package authportal

import (
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strings"
)

/*

Example ACL document:

{
	"default_policy": "deny",
	"rules": [
		{
			"domain": "public.example.com",
			"policy": "bypass"
		},
		{
			"domain": ["a.example.com", "*.b.example.com"],
			"resources": ["^/admin.*$"],
			"subject": ["user:alice", "group:admins"],
			"methods": ["GET", "POST"],
			"networks": ["10.0.0.0/8"],
			"policy": "two_factor"
		}
	]
}

*/

// StringOrStrings accepts either a single JSON string or an array of strings.
// The product's ACL documents have always allowed "domain" to be written
// either way, so we keep accepting both.
type StringOrStrings []string

func (x *StringOrStrings) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*x = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*x = many
	return nil
}

// ACLRuleInput is the raw, unvalidated form of one ACL rule, as it appears in
// the configuration document.
type ACLRuleInput struct {
	Domain    StringOrStrings `json:"domain"`
	Resources []string        `json:"resources"`
	Subject   []string        `json:"subject"`
	Methods   []string        `json:"methods"`
	Networks  []string        `json:"networks"`
	Policy    string          `json:"policy"`
}

// ACLConfigurationInput is the raw ACL document, before normalization. It is
// handed to us by whatever loads the configuration (a file, an embedded
// config section, a test).
type ACLConfigurationInput struct {
	DefaultPolicy string         `json:"default_policy"`
	Rules         []ACLRuleInput `json:"rules"`
}

/*
NormalizeACL fills in defaults and validates the raw ACL document, returning
the normalized configuration together with every problem found.

Validation never aborts on the first error: all rules are checked and all
errors are collected, so that an operator sees every problem in one startup
attempt instead of playing fix-and-rerun. The normalized configuration is
returned even when errors are present; deciding whether any error is fatal is
the caller's job, not ours.

Defaults: an absent default_policy becomes "bypass" (a long-standing product
convention that existing configurations depend on), and absent rules become an
empty list.

A rule that fails validation is left out of the normalized rule list. The
engine must never hold a rule it could only partially parse: keeping such a
rule with the broken predicate dropped would silently widen what it matches.

Rule numbers in error messages are 1-based positions within the configured
rule list.
*/
func NormalizeACL(input *ACLConfigurationInput) (*ACLConfiguration, []string) {
	errors := []string{}
	config := &ACLConfiguration{
		DefaultPolicy: Bypass,
		Rules:         []Rule{},
	}
	if input == nil {
		return config, errors
	}

	if input.DefaultPolicy != "" {
		if level, ok := ParsePolicyLevel(input.DefaultPolicy); ok {
			config.DefaultPolicy = level
		} else {
			errors = append(errors, fmt.Sprintf("Default policy '%v' is invalid. It should be one of deny, bypass, one_factor or two_factor.", input.DefaultPolicy))
		}
	}

	for i := range input.Rules {
		rule, ruleErrors := normalizeRule(&input.Rules[i], i+1)
		if len(ruleErrors) != 0 {
			errors = append(errors, ruleErrors...)
			continue
		}
		config.Rules = append(config.Rules, rule)
	}

	return config, errors
}

func normalizeRule(input *ACLRuleInput, position int) (Rule, []string) {
	errors := []string{}
	rule := Rule{}

	for _, domain := range input.Domain {
		rule.Domains = append(rule.Domains, strings.ToLower(domain))
	}

	for _, expr := range input.Resources {
		// Anchor the expression so that matching is full-string, never
		// substring search. Double anchoring of an already-anchored
		// expression is harmless.
		re, err := regexp.Compile(`\A(?:` + expr + `)\z`)
		if err != nil {
			errors = append(errors, fmt.Sprintf("Rule %v has invalid resource expression '%v': %v", position, expr, err))
			continue
		}
		rule.Resources = append(rule.Resources, re)
	}

	for _, raw := range input.Subject {
		selector, ok := ParseSubjectSelector(raw)
		if !ok {
			errors = append(errors, fmt.Sprintf("Rule %v has wrong subject. It should be starting with user: or group:.", position))
			continue
		}
		rule.Subjects = append(rule.Subjects, selector)
	}

	for _, method := range input.Methods {
		rule.Methods = append(rule.Methods, strings.ToUpper(method))
	}

	for _, cidr := range input.Networks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			errors = append(errors, fmt.Sprintf("Rule %v has invalid network '%v': %v", position, cidr, err))
			continue
		}
		rule.Networks = append(rule.Networks, network)
	}

	if level, ok := ParsePolicyLevel(input.Policy); ok {
		rule.Policy = level
	} else {
		errors = append(errors, fmt.Sprintf("Rule %v has invalid policy '%v'. It should be one of deny, bypass, one_factor or two_factor.", position, input.Policy))
	}

	return rule, errors
}
