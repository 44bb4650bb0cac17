package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// promptLogLimit caps how much of a blocked prompt reaches the logs.
const promptLogLimit = 100

// Classification is what an external classifier decided.
type Classification struct {
	Flagged  bool
	Category Category
	Labels   []string
}

// TextClassifier is an optional second opinion on the prompt text.
type TextClassifier interface {
	ClassifyText(ctx context.Context, text string) (Classification, error)
}

// ImageClassifier inspects a referenced image.
type ImageClassifier interface {
	ClassifyImage(ctx context.Context, imageURL, prompt string) (Classification, error)
}

// Recorder receives one call per verdict.
type Recorder interface {
	RecordModerationVerdict(orgType, category string, allowed bool)
}

// Moderator runs the rule pass and any configured classifiers.
type Moderator struct {
	registry *Registry
	enabled  bool
	text     TextClassifier
	image    ImageClassifier
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option customizes a Moderator.
type Option func(*Moderator)

func WithEnabled(enabled bool) Option { return func(m *Moderator) { m.enabled = enabled } }

func WithTextClassifier(c TextClassifier) Option { return func(m *Moderator) { m.text = c } }

func WithImageClassifier(c ImageClassifier) Option { return func(m *Moderator) { m.image = c } }

func WithRecorder(r Recorder) Option { return func(m *Moderator) { m.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(m *Moderator) { m.logger = l } }

func WithClock(now func() time.Time) Option { return func(m *Moderator) { m.now = now } }

// New builds an enabled Moderator over registry.
func New(registry *Registry, opts ...Option) *Moderator {
	if registry == nil {
		registry = NewRegistry(BuiltinProfiles())
	}
	m := &Moderator{
		registry: registry,
		enabled:  true,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Registry exposes the profile registry.
func (m *Moderator) Registry() *Registry { return m.registry }

// Enabled reports whether checks run at all.
func (m *Moderator) Enabled() bool { return m.enabled }

// Check moderates in under the policy for orgType. It never fails: internal
// errors allow the request with NoteUnavailable.
func (m *Moderator) Check(ctx context.Context, in Input, orgType string) (verdict Verdict) {
	var profile Profile
	profile.Name = DefaultOrgType

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("moderation check panicked",
				zap.String("org_type", profile.Name),
				zap.Error(fmt.Errorf("%w: %v", ErrInternal, r)))
			verdict = allow(profile.Name, NoteUnavailable)
		}
		m.record(verdict)
	}()

	profile = m.registry.Resolve(orgType)

	if !m.enabled {
		return allow(profile.Name, NoteDisabled)
	}
	if in.Empty() {
		return allow(profile.Name, NoteEmpty)
	}

	verdict, err := m.check(ctx, in, profile)
	if err != nil {
		m.logger.Error("moderation check failed",
			zap.String("org_type", profile.Name),
			zap.Error(fmt.Errorf("%w: %w", ErrInternal, err)))
		return allow(profile.Name, NoteUnavailable)
	}
	if !verdict.Allowed {
		m.logBlocked(in, verdict)
	}
	return verdict
}

func (m *Moderator) check(ctx context.Context, in Input, profile Profile) (Verdict, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt != "" {
		if v, blocked := m.checkRules(prompt, profile); blocked {
			return v, nil
		}
		if m.text != nil {
			res, err := m.text.ClassifyText(ctx, prompt)
			if err != nil {
				return Verdict{}, fmt.Errorf("text classifier: %w", err)
			}
			if res.Flagged {
				return block(profile.Name, res.Category, res.Labels, SourceTextClassifier), nil
			}
		}
	}

	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL != "" && m.image != nil {
		res, err := m.image.ClassifyImage(ctx, imageURL, prompt)
		if err != nil {
			return Verdict{}, fmt.Errorf("image classifier: %w", err)
		}
		if res.Flagged {
			return block(profile.Name, res.Category, res.Labels, SourceImage), nil
		}
	}
	return allow(profile.Name, ""), nil
}

func (m *Moderator) checkRules(prompt string, profile Profile) (Verdict, bool) {
	normalized := normalize(prompt)
	if normalized == "" {
		return Verdict{}, false
	}
	padded := " " + normalized + " "
	rs := m.registry.rules(profile)

	hits := rs.matchTerms(padded)
	hits = append(hits, matchPatterns(normalized)...)
	hits = append(hits, matchCombinations(padded, rs.exceptions)...)
	if len(hits) == 0 {
		return Verdict{}, false
	}
	category, flagged := summarize(hits)
	return block(profile.Name, category, flagged, SourceRules), true
}

func (m *Moderator) logBlocked(in Input, v Verdict) {
	m.logger.Warn("content blocked",
		zap.String("org_type", v.OrgType),
		zap.String("category", string(v.Category)),
		zap.String("source", v.Source),
		zap.Strings("flagged_terms", v.FlaggedTerms),
		zap.String("prompt_prefix", truncateRunes(strings.TrimSpace(in.Prompt), promptLogLimit)),
		zap.Bool("has_image", strings.TrimSpace(in.ImageURL) != ""),
		zap.Time("timestamp", m.now().UTC()))
}

func (m *Moderator) record(v Verdict) {
	if m.recorder == nil {
		return
	}
	m.recorder.RecordModerationVerdict(v.OrgType, string(v.Category), v.Allowed)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
