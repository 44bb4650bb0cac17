package branding

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when an org has no branding profile.
var ErrNotFound = errors.New("branding profile not found")

// Profile is the brand guidance uploaded for one organization type.
type Profile struct {
	OrgType          string      `json:"orgType"`
	OrganizationName string      `json:"organizationName,omitempty"`
	PrincipalColors  []string    `json:"principalColors,omitempty"`
	VisualStyle      VisualStyle `json:"visualStyle"`
	Guidelines       Guidelines  `json:"brandGuidelines"`
	NegativeTerms    []string    `json:"negativeTerms,omitempty"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

type VisualStyle struct {
	ImageStyle string   `json:"imageStyle,omitempty"`
	Mood       string   `json:"mood,omitempty"`
	Techniques []string `json:"techniques,omitempty"`
}

type Guidelines struct {
	MessagingTone string   `json:"messagingTone,omitempty"`
	KeyValues     []string `json:"keyValues,omitempty"`
}

// ParseProfile decodes an uploaded branding document for orgType.
func ParseProfile(orgType string, data []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode branding profile: %w", err)
	}
	if strings.TrimSpace(orgType) != "" {
		p.OrgType = orgType
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate rejects profiles that would contribute nothing.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.OrgType) == "" {
		return errors.New("branding profile: org type required")
	}
	if strings.TrimSpace(p.VisualStyle.ImageStyle) == "" &&
		strings.TrimSpace(p.VisualStyle.Mood) == "" &&
		len(p.VisualStyle.Techniques) == 0 &&
		len(p.PrincipalColors) == 0 {
		return errors.New("branding profile: visualStyle or principalColors required")
	}
	return nil
}

// fragments lists the prompt additions in application order.
func (p Profile) fragments() []string {
	var out []string
	if s := strings.TrimSpace(p.VisualStyle.ImageStyle); s != "" {
		out = append(out, s)
	}
	if s := strings.TrimSpace(p.VisualStyle.Mood); s != "" {
		out = append(out, s+" mood")
	}
	for _, t := range p.VisualStyle.Techniques {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
