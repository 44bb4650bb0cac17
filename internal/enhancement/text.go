package enhancement

import (
	"math"
	"strings"
)

// Mode selects the generation or edit flavour of the enhancement text.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeEdit     Mode = "edit"
)

// ParseMode maps user input onto a Mode, defaulting to ModeGenerate.
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeEdit)) {
		return ModeEdit
	}
	return ModeGenerate
}

// TextOptions controls ApplyText.
type TextOptions struct {
	Mode Mode
	// UseEditText picks edit_enhancement_text on the edit path. When false the
	// edit path uses the same text as generation.
	UseEditText bool
	// Intensity in [0,1]; nil means the configured default, else 1.
	Intensity  *float64
	CustomText string
}

// TextResult is the outcome of ApplyText.
type TextResult struct {
	Prompt      string  `json:"prompt"`
	AppliedText string  `json:"applied_text"`
	Intensity   float64 `json:"intensity"`
}

// ApplyText appends the free-form enhancement text to prompt.
func (e *Enhancer) ApplyText(prompt string, opts TextOptions) TextResult {
	cfg := e.snap.cfg
	text := strings.TrimSpace(opts.CustomText)
	if text == "" {
		text = cfg.EnhancementText
		if opts.Mode == ModeEdit && opts.UseEditText && strings.TrimSpace(cfg.EditEnhancementText) != "" {
			text = cfg.EditEnhancementText
		}
	}

	intensity := 1.0
	switch {
	case opts.Intensity != nil:
		intensity = *opts.Intensity
	case cfg.Defaults.Intensity != nil:
		intensity = *cfg.Defaults.Intensity
	}
	intensity = math.Max(0, math.Min(1, intensity))

	applied := truncateSentences(strings.TrimSpace(text), intensity)
	base := strings.TrimSpace(prompt)
	out := TextResult{Prompt: base, AppliedText: applied, Intensity: intensity}
	switch {
	case applied == "":
	case base == "":
		out.Prompt = applied
	default:
		out.Prompt = base + cfg.Assembly.Join + applied
	}
	return out
}

// truncateSentences keeps ceil(n*intensity) of the ". " separated sentences,
// at least one, and none at intensity zero.
func truncateSentences(text string, intensity float64) string {
	if text == "" || intensity <= 0 {
		return ""
	}
	if intensity >= 1 {
		return text
	}
	sentences := strings.Split(text, ". ")
	keep := int(math.Ceil(float64(len(sentences)) * intensity))
	if keep < 1 {
		keep = 1
	}
	if keep >= len(sentences) {
		return text
	}
	return strings.Join(sentences[:keep], ". ") + "."
}

// SafetyNegatives returns the extra protection groups for mode. Only the edit
// path carries them.
func (e *Enhancer) SafetyNegatives(mode Mode) []string {
	if mode != ModeEdit {
		return nil
	}
	cfg := e.snap.cfg
	groups := make([]string, 0, len(cfg.EnforcedNegativesNSFW)+len(cfg.EnforcedNegativesAge)+len(cfg.EnforcedNegativesHumanIntegrity))
	groups = append(groups, cfg.EnforcedNegativesNSFW...)
	groups = append(groups, cfg.EnforcedNegativesAge...)
	groups = append(groups, cfg.EnforcedNegativesHumanIntegrity...)
	return Dedupe(groups)
}
