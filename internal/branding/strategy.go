package branding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Mode selects the branding strategy. It is decided once at startup.
type Mode string

const (
	ModeFull   Mode = "full"
	ModeSimple Mode = "simple"
	ModeNone   Mode = "none"
)

// ResolveMode maps the configured mode onto a concrete one. "auto" picks full
// when a profile store is available and simple otherwise; an explicit full
// without a store also degrades to simple.
func ResolveMode(configured string, storeAvailable bool) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(configured))) {
	case ModeNone:
		return ModeNone
	case ModeSimple:
		return ModeSimple
	default:
		if storeAvailable {
			return ModeFull
		}
		return ModeSimple
	}
}

// textNegative keeps rendered lettering out of generated images.
const textNegative = "no text, no words, no letters, no signs with text, no logos"

// Result is the outcome of one branding pass.
type Result struct {
	Prompt          string   `json:"prompt"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	SuggestedColors []string `json:"suggested_colors,omitempty"`
	Elements        []string `json:"elements,omitempty"`
	Strategy        Mode     `json:"strategy"`
}

// Strategy adds organization branding to a prompt.
type Strategy interface {
	Mode() Mode
	Apply(ctx context.Context, orgType, prompt string) (Result, error)
}

// NewStrategy builds the strategy for mode. store is only used by ModeFull.
func NewStrategy(mode Mode, store Store) (Strategy, error) {
	switch mode {
	case ModeFull:
		if store == nil {
			return nil, errors.New("branding: full mode requires a store")
		}
		return FullStrategy{store: store}, nil
	case ModeSimple:
		return SimpleStrategy{}, nil
	case ModeNone:
		return NoneStrategy{}, nil
	default:
		return nil, fmt.Errorf("branding: unknown mode %q", mode)
	}
}

// FullStrategy applies the stored profile for the org.
type FullStrategy struct {
	store Store
}

func (FullStrategy) Mode() Mode { return ModeFull }

// Apply returns the prompt untouched when the org has no profile.
func (s FullStrategy) Apply(ctx context.Context, orgType, prompt string) (Result, error) {
	res := Result{Prompt: prompt, Strategy: ModeFull}
	profile, err := s.store.Get(ctx, orgType)
	if errors.Is(err, ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("load branding for %s: %w", orgType, err)
	}

	elements := profile.fragments()
	res.Elements = elements
	res.Prompt = joinPrompt(prompt, elements)
	res.SuggestedColors = append([]string(nil), profile.PrincipalColors...)

	negatives := append([]string(nil), profile.NegativeTerms...)
	negatives = append(negatives, textNegative)
	res.NegativePrompt = strings.Join(negatives, ", ")
	return res, nil
}

var (
	styleKeywords  = []string{"photo", "photography", "illustration", "painting", "drawing", "render", "style", "watercolor", "poster"}
	peopleKeywords = []string{"people", "person", "group", "crowd", "community", "volunteers", "team"}
)

// SimpleStrategy adds static, keyword-driven style guidance.
type SimpleStrategy struct{}

func (SimpleStrategy) Mode() Mode { return ModeSimple }

func (SimpleStrategy) Apply(_ context.Context, _ string, prompt string) (Result, error) {
	lower := strings.ToLower(prompt)
	var elements []string
	if !containsAny(lower, styleKeywords) {
		elements = append(elements, "documentary photography style", "natural colors", "warm and welcoming")
	}
	if containsAny(lower, peopleKeywords) {
		elements = append(elements, "diverse group of people", "optimistic expressions", "community and collaboration")
	}
	return Result{
		Prompt:         joinPrompt(prompt, elements),
		NegativePrompt: textNegative,
		Elements:       elements,
		Strategy:       ModeSimple,
	}, nil
}

// NoneStrategy leaves the prompt unchanged.
type NoneStrategy struct{}

func (NoneStrategy) Mode() Mode { return ModeNone }

func (NoneStrategy) Apply(_ context.Context, _ string, prompt string) (Result, error) {
	return Result{Prompt: prompt, Strategy: ModeNone}, nil
}

func joinPrompt(prompt string, elements []string) string {
	prompt = strings.TrimSpace(prompt)
	if len(elements) == 0 {
		return prompt
	}
	if prompt == "" {
		return strings.Join(elements, ", ")
	}
	return prompt + ", " + strings.Join(elements, ", ")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
