package authportal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDefaults(t *testing.T) {
	config, errors := NormalizeACL(&ACLConfigurationInput{})
	if len(errors) != 0 {
		t.Fatalf("Expected no errors, got %v", errors)
	}
	if config.DefaultPolicy != Bypass {
		t.Fatalf("Expected default policy bypass, got %v", config.DefaultPolicy)
	}
	if len(config.Rules) != 0 {
		t.Fatalf("Expected no rules, got %v", len(config.Rules))
	}

	config, errors = NormalizeACL(nil)
	if len(errors) != 0 || config.DefaultPolicy != Bypass || len(config.Rules) != 0 {
		t.Fatalf("Expected nil input to normalize to the empty configuration")
	}
}

func TestNormalizeSubjectValidation(t *testing.T) {
	input := &ACLConfigurationInput{
		Rules: []ACLRuleInput{
			{Domain: StringOrStrings{"a.example.com"}, Subject: []string{"user:abc"}, Policy: "bypass"},
			{Domain: StringOrStrings{"b.example.com"}, Subject: []string{"user:def"}, Policy: "bypass"},
			{Domain: StringOrStrings{"c.example.com"}, Subject: []string{"badkey:abc"}, Policy: "bypass"},
		},
	}
	config, errors := NormalizeACL(input)
	if len(errors) != 1 {
		t.Fatalf("Expected exactly 1 error, got %v: %v", len(errors), errors)
	}
	// The message format is part of the product's operator-facing contract
	if errors[0] != "Rule 3 has wrong subject. It should be starting with user: or group:." {
		t.Fatalf("Wrong error message: %q", errors[0])
	}
	// The broken rule must not reach the engine
	if len(config.Rules) != 2 {
		t.Fatalf("Expected 2 surviving rules, got %v", len(config.Rules))
	}
}

func TestNormalizeCollectsAllErrors(t *testing.T) {
	input := &ACLConfigurationInput{
		DefaultPolicy: "sometimes",
		Rules: []ACLRuleInput{
			{Domain: StringOrStrings{"a.example.com"}, Resources: []string{"^/(unclosed$"}, Policy: "bypass"},
			{Domain: StringOrStrings{"b.example.com"}, Networks: []string{"10.0.0.0/99"}, Policy: "bypass"},
			{Domain: StringOrStrings{"c.example.com"}, Policy: "sorta"},
		},
	}
	config, errors := NormalizeACL(input)
	// One error per problem, all collected in a single pass
	assert.Equal(t, 4, len(errors), "errors: %v", errors)
	// The configuration is still returned and still usable; severity is the caller's call
	assert.Equal(t, Bypass, config.DefaultPolicy)
	assert.Equal(t, 0, len(config.Rules))
}

func TestNormalizeLoosensNothing(t *testing.T) {
	// A rule that failed validation must be absent, not present-but-weakened
	input := &ACLConfigurationInput{
		DefaultPolicy: "deny",
		Rules: []ACLRuleInput{
			{Domain: StringOrStrings{"app.example.com"}, Subject: []string{"nonsense"}, Policy: "bypass"},
		},
	}
	config, errors := NormalizeACL(input)
	if len(errors) != 1 {
		t.Fatalf("Expected 1 error, got %v", errors)
	}
	engine := NewPolicyEngine(config)
	if level := engine.Evaluate(anonymousRequest("app.example.com", "/")); level != Deny {
		t.Fatalf("Dropped rule must not leave a bypass behind, got %v", level)
	}
}

func TestACLDomainStringOrList(t *testing.T) {
	single := []byte(`{"rules": [{"domain": "app.example.com", "policy": "bypass"}]}`)
	input := &ACLConfigurationInput{}
	if err := json.Unmarshal(single, input); err != nil {
		t.Fatalf("Unable to unmarshal single-domain rule: %v", err)
	}
	assert.Equal(t, StringOrStrings{"app.example.com"}, input.Rules[0].Domain)

	many := []byte(`{"rules": [{"domain": ["a.example.com", "*.b.example.com"], "policy": "bypass"}]}`)
	input = &ACLConfigurationInput{}
	if err := json.Unmarshal(many, input); err != nil {
		t.Fatalf("Unable to unmarshal multi-domain rule: %v", err)
	}
	assert.Equal(t, StringOrStrings{"a.example.com", "*.b.example.com"}, input.Rules[0].Domain)
}
