package authportal

// PolicyLevel is the authentication strength that an ACL rule demands,
// or that a session has achieved. The ordering is significant: a session
// satisfies a rule when its achieved level is >= the required level.
// Deny and Bypass are absolute - they block or admit regardless of what
// the session has achieved.
type PolicyLevel int

const (
	Deny PolicyLevel = iota
	Bypass
	OneFactor
	TwoFactor
)

var policyNameToLevel = map[string]PolicyLevel{
	"deny":       Deny,
	"bypass":     Bypass,
	"one_factor": OneFactor,
	"two_factor": TwoFactor,
}

var policyLevelToName = map[PolicyLevel]string{
	Deny:      "deny",
	Bypass:    "bypass",
	OneFactor: "one_factor",
	TwoFactor: "two_factor",
}

// ParsePolicyLevel parses the configuration string form of a policy level.
func ParsePolicyLevel(name string) (PolicyLevel, bool) {
	level, ok := policyNameToLevel[name]
	return level, ok
}

func (l PolicyLevel) String() string {
	if name, ok := policyLevelToName[l]; ok {
		return name
	}
	return "unknown"
}
