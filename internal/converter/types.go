// Package converter turns JSON rule sources into mihomo ruleset entries.
package converter

// Behavior is the mihomo ruleset behavior a Ruleset is built for.
type Behavior string

const (
	BehaviorDomain    Behavior = "domain"
	BehaviorClassical Behavior = "classical"
)

// RuleKind represents the type of a rule.
type RuleKind int

const (
	RuleDomainSuffix RuleKind = iota
	RuleDomain
	RuleDomainKeyword
	RuleDomainRegex
	RuleDomainKeywordRegex
	RuleIPCIDR
	RuleIPCIDR6
	RuleProcessName
	RuleProcessNameRegex
	// RulePayload is a complete rule line passed through as-is.
	RulePayload
)

var kindPrefixes = map[RuleKind]string{
	RuleDomainSuffix:       "DOMAIN-SUFFIX",
	RuleDomain:             "DOMAIN",
	RuleDomainKeyword:      "DOMAIN-KEYWORD",
	RuleDomainRegex:        "DOMAIN-REGEX",
	RuleDomainKeywordRegex: "DOMAIN-KEYWORD-REGEX",
	RuleIPCIDR:             "IP-CIDR",
	RuleIPCIDR6:            "IP-CIDR6",
	RuleProcessName:        "PROCESS-NAME",
	RuleProcessNameRegex:   "PROCESS-NAME-REGEX",
}

// Prefix returns the classical rule prefix of the kind, or "" for RulePayload.
func (k RuleKind) Prefix() string {
	return kindPrefixes[k]
}

func (k RuleKind) String() string {
	if k == RulePayload {
		return "PAYLOAD"
	}
	if p, ok := kindPrefixes[k]; ok {
		return p
	}
	return "UNKNOWN"
}

// Rule is a single normalized rule.
type Rule struct {
	Kind  RuleKind
	Value string
}

// Classical renders the rule as a classical line, e.g. "DOMAIN-SUFFIX,example.com".
func (r Rule) Classical() string {
	if r.Kind == RulePayload {
		return r.Value
	}
	return r.Kind.Prefix() + "," + r.Value
}

// DomainEntry renders the rule for a domain behavior ruleset: suffixes
// become "+.example.com", exact domains stay bare.
func (r Rule) DomainEntry() string {
	if r.Kind == RuleDomainSuffix {
		return "+." + r.Value
	}
	return r.Value
}

// Ruleset is the ordered, deduplicated result of converting one source file.
type Ruleset struct {
	Name     string
	Behavior Behavior
	Rules    []Rule

	// Unresolved holds geoip codes that produced no networks.
	Unresolved []string
}

// Lines renders every rule in the format of the ruleset behavior.
func (rs *Ruleset) Lines() []string {
	lines := make([]string, 0, len(rs.Rules))
	for _, rule := range rs.Rules {
		if rs.Behavior == BehaviorDomain {
			lines = append(lines, rule.DomainEntry())
		} else {
			lines = append(lines, rule.Classical())
		}
	}
	return lines
}

// Empty reports whether the ruleset has no rules.
func (rs *Ruleset) Empty() bool {
	return len(rs.Rules) == 0
}
