package converter

import (
	"strings"

	"github.com/xxxbrian/ruleset-builder/internal/source"
)

// GeoIPLookup resolves a country or category code to its CIDR networks.
type GeoIPLookup interface {
	GetCIDRs(code string) ([]string, bool)
}

// Converter handles rule conversion
type Converter struct {
	geoip GeoIPLookup
}

// NewConverter creates a new Converter. geoip may be nil, in which case
// geoip rules are reported as unresolved.
func NewConverter(geoip GeoIPLookup) *Converter {
	return &Converter{geoip: geoip}
}

// Domain converts a domain source into a domain behavior ruleset.
// Suffixes and exact domains are deduplicated independently.
func (c *Converter) Domain(name string, src *source.DomainSource) *Ruleset {
	rs := &Ruleset{Name: name, Behavior: BehaviorDomain}
	seenSuffix := make(map[string]struct{})
	seenExact := make(map[string]struct{})

	add := func(kind RuleKind, seen map[string]struct{}, values []string) {
		for _, raw := range values {
			value := NormalizeDomain(raw)
			if value == "" {
				continue
			}
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			rs.Rules = append(rs.Rules, Rule{Kind: kind, Value: value})
		}
	}

	for _, rule := range src.Rules {
		add(RuleDomainSuffix, seenSuffix, rule.DomainSuffix)
		add(RuleDomain, seenExact, rule.Domain)
	}
	return rs
}

// classicalField binds a classical source key to its rule kind.
type classicalField struct {
	kind      RuleKind
	values    func(r *source.ClassicalRule) source.StringList
	normalize func(string) string
}

// classicalFields lists the recognized keys in output order.
var classicalFields = []classicalField{
	{RuleDomainSuffix, func(r *source.ClassicalRule) source.StringList { return r.DomainSuffix }, NormalizeDomain},
	{RuleDomain, func(r *source.ClassicalRule) source.StringList { return r.Domain }, NormalizeDomain},
	{RuleDomainKeyword, func(r *source.ClassicalRule) source.StringList { return r.DomainKeyword }, NormalizeKeyword},
	{RuleDomainRegex, func(r *source.ClassicalRule) source.StringList { return r.DomainRegex }, strings.TrimSpace},
	{RuleDomainKeywordRegex, func(r *source.ClassicalRule) source.StringList { return r.DomainKeywordRegex }, strings.TrimSpace},
	{RuleIPCIDR, func(r *source.ClassicalRule) source.StringList { return r.IPCIDR }, strings.TrimSpace},
	{RuleIPCIDR6, func(r *source.ClassicalRule) source.StringList { return r.IPCIDR6 }, strings.TrimSpace},
	{RuleProcessName, func(r *source.ClassicalRule) source.StringList { return r.ProcessName }, strings.TrimSpace},
	{RuleProcessNameRegex, func(r *source.ClassicalRule) source.StringList { return r.ProcessNameRegex }, strings.TrimSpace},
	{RulePayload, func(r *source.ClassicalRule) source.StringList { return r.Payload }, strings.TrimSpace},
}

// Classical converts a classical source into a classical behavior ruleset.
// One dedup set keyed by the rendered line is shared by all kinds.
func (c *Converter) Classical(name string, src *source.ClassicalSource) *Ruleset {
	rs := &Ruleset{Name: name, Behavior: BehaviorClassical}
	seen := make(map[string]struct{})

	add := func(rule Rule) {
		line := rule.Classical()
		if _, ok := seen[line]; ok {
			return
		}
		seen[line] = struct{}{}
		rs.Rules = append(rs.Rules, rule)
	}

	for i := range src.Rules {
		rule := &src.Rules[i]
		for _, field := range classicalFields {
			for _, raw := range field.values(rule) {
				value := field.normalize(raw)
				if value == "" {
					continue
				}
				add(Rule{Kind: field.kind, Value: value})
			}
		}
		for _, raw := range rule.GeoIP {
			code := strings.ToUpper(strings.TrimSpace(raw))
			if code == "" {
				continue
			}
			cidrs, ok := c.lookup(code)
			if !ok {
				rs.Unresolved = append(rs.Unresolved, code)
				continue
			}
			for _, cidr := range cidrs {
				kind := RuleIPCIDR
				if strings.Contains(cidr, ":") {
					kind = RuleIPCIDR6
				}
				add(Rule{Kind: kind, Value: cidr})
			}
		}
	}
	return rs
}

func (c *Converter) lookup(code string) ([]string, bool) {
	if c.geoip == nil {
		return nil, false
	}
	cidrs, ok := c.geoip.GetCIDRs(code)
	if !ok || len(cidrs) == 0 {
		return nil, false
	}
	return cidrs, true
}
