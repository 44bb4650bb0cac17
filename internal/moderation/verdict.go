package moderation

import (
	"errors"
	"strings"
)

// ErrInternal marks a failure inside moderation itself. Check never returns
// it; it is logged and the request is allowed.
var ErrInternal = errors.New("moderation internal error")

// Category classifies why content was blocked.
type Category string

const (
	CategoryNone     Category = "none"
	CategorySexual   Category = "sexual"
	CategoryViolence Category = "violence"
	CategoryMinors   Category = "minors"
	CategoryOther    Category = "other"
)

// priority orders categories when several lists match; lower wins.
func (c Category) priority() int {
	switch c {
	case CategoryMinors:
		return 0
	case CategorySexual:
		return 1
	case CategoryViolence:
		return 2
	case CategoryOther:
		return 3
	default:
		return 4
	}
}

// ParseCategory maps free-form labels from classifiers onto a Category.
func ParseCategory(raw string) Category {
	label := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case label == "" || label == "none":
		return CategoryNone
	case strings.Contains(label, "minor") || strings.Contains(label, "child"):
		return CategoryMinors
	case strings.Contains(label, "sexual") || strings.Contains(label, "explicit") || strings.Contains(label, "nudity"):
		return CategorySexual
	case strings.Contains(label, "violen") || strings.Contains(label, "self-harm") || strings.Contains(label, "self_harm") || strings.Contains(label, "gore"):
		return CategoryViolence
	default:
		return CategoryOther
	}
}

// Reasons shown to callers. They never name the matched terms.
var reasons = map[Category]string{
	CategoryMinors:   "This request cannot be processed because it may affect the safety of young people.",
	CategorySexual:   "This request describes adult material that is not appropriate for organizational use.",
	CategoryViolence: "Images depicting harm or cruelty are not permitted on this platform.",
	CategoryOther:    "Your request does not comply with our content guidelines.",
}

// Reason returns the user-safe message for c.
func Reason(c Category) string {
	if msg, ok := reasons[c]; ok {
		return msg
	}
	return reasons[CategoryOther]
}

// Notes attached to allowed verdicts that did not run the full check.
const (
	NoteUnavailable = "moderation temporarily unavailable"
	NoteDisabled    = "moderation disabled"
	NoteEmpty       = "nothing to moderate"
)

// Verdict sources.
const (
	SourceRules          = "rules"
	SourceTextClassifier = "text_classifier"
	SourceImage          = "image_classifier"
)

// Verdict is the result of one moderation check.
type Verdict struct {
	Allowed  bool     `json:"allowed"`
	Category Category `json:"category"`
	Reason   string   `json:"reason,omitempty"`
	// FlaggedTerms is for internal logs only and is never serialized.
	FlaggedTerms []string `json:"-"`
	Note         string   `json:"note,omitempty"`
	OrgType      string   `json:"org_type"`
	Source       string   `json:"source,omitempty"`
}

func allow(orgType, note string) Verdict {
	return Verdict{Allowed: true, Category: CategoryNone, OrgType: orgType, Note: note}
}

func block(orgType string, category Category, flagged []string, source string) Verdict {
	if category == CategoryNone || category == "" {
		category = CategoryOther
	}
	return Verdict{
		Allowed:      false,
		Category:     category,
		Reason:       Reason(category),
		FlaggedTerms: flagged,
		OrgType:      orgType,
		Source:       source,
	}
}

// Input is the content submitted for a check.
type Input struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl"`
}

// Empty reports whether there is nothing to check.
func (in Input) Empty() bool {
	return strings.TrimSpace(in.Prompt) == "" && strings.TrimSpace(in.ImageURL) == ""
}
