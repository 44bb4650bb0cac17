package moderation

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// DefaultOrgType is used when a caller omits or misspells the org type.
const DefaultOrgType = "general"

// Strictness selects which tiers of the global blocklist apply.
type Strictness string

const (
	StrictnessLow      Strictness = "low"
	StrictnessStandard Strictness = "standard"
	StrictnessStrict   Strictness = "strict"
)

func (s Strictness) rank() int {
	switch s {
	case StrictnessLow:
		return 0
	case StrictnessStrict:
		return 2
	default:
		return 1
	}
}

func (s Strictness) includes(tier Strictness) bool {
	return tier.rank() <= s.rank()
}

// ParseStrictness accepts the canonical names and the legacy
// low/medium/high scale. Unknown values map to standard.
func ParseStrictness(raw string) Strictness {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return StrictnessLow
	case "strict", "high":
		return StrictnessStrict
	default:
		return StrictnessStandard
	}
}

// Profile is the moderation policy for one organization type.
type Profile struct {
	Name                   string     `yaml:"-" json:"name"`
	Description            string     `yaml:"description" json:"description,omitempty"`
	Strictness             Strictness `yaml:"strictness" json:"strictness"`
	AdditionalBlockedTerms []string   `yaml:"additional_blocked_terms" json:"-"`
	AllowedExceptions      []string   `yaml:"allowed_exceptions" json:"-"`
	AllowPublicFigures     bool       `yaml:"allow_public_figures" json:"allow_public_figures"`
	AllowPoliticalContent  bool       `yaml:"allow_political_content" json:"allow_political_content"`
}

// PublicProfile is the shape exposed over the API; term lists stay private.
type PublicProfile struct {
	Name                  string     `json:"name"`
	Description           string     `json:"description,omitempty"`
	Strictness            Strictness `json:"strictness"`
	AllowPublicFigures    bool       `json:"allow_public_figures"`
	AllowPoliticalContent bool       `json:"allow_political_content"`
	CustomTermCount       int        `json:"custom_term_count"`
	ExceptionCount        int        `json:"exception_count"`
}

func (p Profile) Public() PublicProfile {
	return PublicProfile{
		Name:                  p.Name,
		Description:           p.Description,
		Strictness:            p.Strictness,
		AllowPublicFigures:    p.AllowPublicFigures,
		AllowPoliticalContent: p.AllowPoliticalContent,
		CustomTermCount:       len(p.AdditionalBlockedTerms),
		ExceptionCount:        len(p.AllowedExceptions),
	}
}

// BuiltinProfiles returns the shipped organization profiles.
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		"general": {
			Description:           "baseline policy",
			Strictness:            StrictnessStandard,
			AllowPoliticalContent: true,
		},
		"ngo": {
			Description:            "non-governmental organizations",
			Strictness:             StrictnessStrict,
			AdditionalBlockedTerms: []string{"discrimination", "prejudice"},
			AllowedExceptions:      []string{"protest", "demonstration"},
		},
		"political_party": {
			Description:            "party campaigns",
			Strictness:             StrictnessStandard,
			AdditionalBlockedTerms: []string{"voter fraud", "vote manipulation", "election interference", "voter suppression"},
			AllowedExceptions:      []string{"protest", "rally", "election", "campaign", "candidate"},
			AllowPoliticalContent:  true,
		},
		"advocacy": {
			Description:           "advocacy groups",
			Strictness:            StrictnessStandard,
			AllowPublicFigures:    true,
			AllowPoliticalContent: true,
		},
		"environmental_ngo": {
			Description:            "environmental campaigns",
			Strictness:             StrictnessStrict,
			AdditionalBlockedTerms: []string{"anti-environment", "pollution promotion", "fossil fuel advocacy", "climate denial"},
			AllowedExceptions:      []string{"protest", "demonstration"},
		},
		"human_rights_ngo": {
			Description:            "human rights organizations",
			Strictness:             StrictnessStrict,
			AdditionalBlockedTerms: []string{"victim blaming", "rights denial", "oppression advocacy", "historical revisionism"},
			AllowedExceptions:      []string{"protest", "demonstration", "election"},
			AllowPoliticalContent:  true,
		},
		"youth_education": {
			Description:            "programs for young audiences",
			Strictness:             StrictnessStrict,
			AdditionalBlockedTerms: []string{"gambling", "vaping", "energy drink"},
		},
	}
}

// Registry resolves org types to profiles and caches their compiled rules.
type Registry struct {
	profiles map[string]Profile

	mu       sync.RWMutex
	compiled map[string]ruleset
}

// NewRegistry builds a registry from profiles. A general profile is always
// present.
func NewRegistry(profiles map[string]Profile) *Registry {
	out := make(map[string]Profile, len(profiles)+1)
	for name, p := range profiles {
		key := NormalizeOrgType(name)
		if key == "" {
			continue
		}
		p.Name = key
		p.Strictness = ParseStrictness(string(p.Strictness))
		out[key] = p
	}
	if _, ok := out[DefaultOrgType]; !ok {
		out[DefaultOrgType] = Profile{Name: DefaultOrgType, Strictness: StrictnessStandard, AllowPoliticalContent: true}
	}
	return &Registry{profiles: out, compiled: make(map[string]ruleset, len(out))}
}

// Resolve returns the profile for orgType, or general when unknown.
func (r *Registry) Resolve(orgType string) Profile {
	if p, ok := r.profiles[NormalizeOrgType(orgType)]; ok {
		return p
	}
	return r.profiles[DefaultOrgType]
}

// Known reports whether orgType names a configured profile.
func (r *Registry) Known(orgType string) bool {
	_, ok := r.profiles[NormalizeOrgType(orgType)]
	return ok
}

// Names lists the configured org types in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) rules(p Profile) ruleset {
	r.mu.RLock()
	rs, ok := r.compiled[p.Name]
	r.mu.RUnlock()
	if ok {
		return rs
	}
	rs = compileRuleset(p)
	r.mu.Lock()
	r.compiled[p.Name] = rs
	r.mu.Unlock()
	return rs
}

// BlockedTerms returns the effective normalized term list for orgType.
func (r *Registry) BlockedTerms(orgType string) []string {
	rs := r.rules(r.Resolve(orgType))
	out := make([]string, 0, len(rs.terms))
	for _, t := range rs.terms {
		out = append(out, t.term)
	}
	return out
}

type profilesFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadProfiles merges the YAML file at path over the built-in profiles. An
// entry replaces the built-in profile of the same name.
func LoadProfiles(path string) (map[string]Profile, error) {
	profiles := BuiltinProfiles()
	if strings.TrimSpace(path) == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read moderation profiles: %w", err)
	}
	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode moderation profiles %s: %w", path, err)
	}
	for name, p := range file.Profiles {
		key := NormalizeOrgType(name)
		if key == "" {
			return nil, fmt.Errorf("moderation profiles %s: empty profile name", path)
		}
		profiles[key] = p
	}
	return profiles, nil
}

// NormalizeOrgType maps "politicalParty", "Political Party" and
// "political-party" onto "political_party".
func NormalizeOrgType(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	var prevLower, sep bool
	for _, r := range raw {
		switch {
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if b.Len() > 0 && !sep {
				b.WriteByte('_')
				sep = true
			}
			prevLower = false
			continue
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			prevLower = false
			r = unicode.ToLower(r)
		default:
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
		b.WriteRune(r)
		sep = false
	}
	return strings.Trim(b.String(), "_")
}

// PublicView returns the profile for orgType without its term lists.
func (r *Registry) PublicView(orgType string) PublicProfile {
	return r.Resolve(orgType).Public()
}
