package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/adapters/fal"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/branding"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/enhancement"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/models"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/providers"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/storage/blob"
)

// ErrBlocked is matched by every BlockedError.
var ErrBlocked = errors.New("generation: blocked by moderation")

// ErrInvalidRequest reports a request the pipeline cannot run.
var ErrInvalidRequest = errors.New("generation: invalid request")

// BlockedError carries the verdict that stopped a request.
type BlockedError struct {
	Verdict moderation.Verdict
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("generation: blocked by moderation (%s)", e.Verdict.Category)
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }

// Operations.
const (
	OperationGenerate = "generate"
	OperationEdit     = "edit"
)

// Request is one generation or edit.
type Request struct {
	OrgType        string
	Prompt         string
	NegativePrompt string
	Model          string

	UseEnhancement bool
	Selections     map[string]string
	Intensity      *float64
	CustomText     string

	Size          string
	OutputFormat  string
	N             int
	Steps         int
	GuidanceScale float64
	Seed          *int64

	// Edit sources. ImageURLs win over uploaded Images.
	ImageURLs []string
	Images    []models.ImageInput

	DisableSafetyChecker bool
	User                 string
}

func (r Request) firstImage() string {
	for _, u := range r.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	if len(r.Images) > 0 {
		return r.Images[0].DataURL()
	}
	return ""
}

// PromptInfo describes how the final prompt was built.
type PromptInfo struct {
	Original    string              `json:"original"`
	Final       string              `json:"final"`
	Negative    string              `json:"negative"`
	Enhanced    bool                `json:"enhanced"`
	Branding    *branding.Result    `json:"branding,omitempty"`
	Enhancement *enhancement.Result `json:"enhancement,omitempty"`
	AppliedText string              `json:"applied_text,omitempty"`
}

// Settings echoes the effective provider parameters.
type Settings struct {
	Operation         string  `json:"operation"`
	Provider          string  `json:"provider"`
	Model             string  `json:"model"`
	Size              string  `json:"size,omitempty"`
	OutputFormat      string  `json:"output_format,omitempty"`
	N                 int     `json:"n"`
	Steps             int     `json:"steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	Seed              *int64  `json:"seed,omitempty"`
	ConfigFingerprint string  `json:"config_fingerprint,omitempty"`
}

// Result is the relay payload returned to callers.
type Result struct {
	ID        string             `json:"id"`
	Images    []models.ImageData `json:"images"`
	Prompt    PromptInfo         `json:"prompt"`
	Settings  Settings           `json:"settings"`
	Verdict   moderation.Verdict `json:"verdict"`
	NSFWFlags []bool             `json:"nsfw_flags,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Recorder receives pipeline metrics.
type Recorder interface {
	RecordProviderLatency(orgType, model, provider string, status int, duration time.Duration)
	RecordEnhancementSkipped(category string)
}

// Options wires a Service. Moderator, Enhancements and Providers are
// required; the rest are optional.
type Options struct {
	Moderator    *moderation.Moderator
	Branding     branding.Strategy
	Enhancements enhancement.Source
	Providers    *providers.Registry
	Store        blob.Store
	History      History
	Recorder     Recorder
	Logger       *zap.Logger
	// UseEditText selects edit_enhancement_text on the edit path.
	UseEditText bool
	// Fetcher downloads provider image URLs for persistence.
	Fetcher *http.Client
	// Disclaimer, when set, is stamped into every image before persistence.
	Disclaimer *Disclaimer
	Now        func() time.Time
}

// Service runs moderation, branding, enhancement and the provider call.
type Service struct {
	moderator   *moderation.Moderator
	branding    branding.Strategy
	source      enhancement.Source
	providers   *providers.Registry
	store       blob.Store
	history     History
	recorder    Recorder
	logger      *zap.Logger
	useEditText bool
	fetcher     *http.Client
	disclaimer  *Disclaimer
	now         func() time.Time
	newID       func() uuid.UUID
}

func NewService(opts Options) (*Service, error) {
	if opts.Moderator == nil || opts.Enhancements == nil || opts.Providers == nil {
		return nil, errors.New("generation: moderator, enhancement source and providers are required")
	}
	s := &Service{
		moderator:   opts.Moderator,
		branding:    opts.Branding,
		source:      opts.Enhancements,
		providers:   opts.Providers,
		store:       opts.Store,
		history:     opts.History,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		useEditText: opts.UseEditText,
		fetcher:     opts.Fetcher,
		disclaimer:  opts.Disclaimer,
		now:         opts.Now,
		newID:       uuid.New,
	}
	if s.branding == nil {
		s.branding = branding.NoneStrategy{}
	}
	if s.history == nil {
		s.history = NopHistory{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.fetcher == nil {
		s.fetcher = &http.Client{Timeout: 30 * time.Second}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Generate runs the text-to-image pipeline.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	return s.run(ctx, OperationGenerate, req)
}

// Edit runs the image-to-image pipeline.
func (s *Service) Edit(ctx context.Context, req Request) (Result, error) {
	if len(req.ImageURLs) == 0 && len(req.Images) == 0 {
		return Result{}, fmt.Errorf("%w: at least one source image is required", ErrInvalidRequest)
	}
	return s.run(ctx, OperationEdit, req)
}

func (s *Service) run(ctx context.Context, op string, req Request) (Result, error) {
	original := strings.TrimSpace(req.Prompt)
	if original == "" {
		return Result{}, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	orgType := moderation.NormalizeOrgType(req.OrgType)
	if orgType == "" {
		orgType = moderation.DefaultOrgType
	}

	verdict := s.moderator.Check(ctx, moderation.Input{Prompt: original, ImageURL: req.firstImage()}, orgType)
	if !verdict.Allowed {
		return Result{Verdict: verdict}, &BlockedError{Verdict: verdict}
	}

	id := s.newID()
	info := PromptInfo{Original: original}

	brand, err := s.branding.Apply(ctx, orgType, original)
	if err != nil {
		s.logger.Warn("branding failed, using original prompt",
			zap.String("org_type", orgType), zap.String("strategy", string(s.branding.Mode())), zap.Error(err))
	}
	prompt := original
	if strings.TrimSpace(brand.Prompt) != "" {
		prompt = brand.Prompt
	}
	brand.Strategy = s.branding.Mode()
	info.Branding = &brand

	mode := enhancement.ModeGenerate
	if op == OperationEdit {
		mode = enhancement.ModeEdit
	}
	enh := enhancement.New(s.source.Current())
	negatives := enhancement.SplitNegatives(req.NegativePrompt)
	negatives = append(negatives, enhancement.SplitNegatives(brand.NegativePrompt)...)

	if req.UseEnhancement {
		canonical := enh.Generate(prompt, req.Selections)
		for _, skipped := range canonical.Skipped() {
			if s.recorder != nil {
				s.recorder.RecordEnhancementSkipped(skipped.Category)
			}
		}
		text := enh.ApplyText(canonical.EnhancedPrompt, enhancement.TextOptions{
			Mode:        mode,
			UseEditText: s.useEditText,
			Intensity:   req.Intensity,
			CustomText:  req.CustomText,
		})
		prompt = text.Prompt
		info.Enhanced = true
		info.Enhancement = &canonical
		info.AppliedText = text.AppliedText
		negatives = append(negatives, enhancement.SplitNegatives(canonical.NegativePrompt)...)
	}
	negatives = append(negatives, enh.SafetyNegatives(mode)...)

	info.Final = prompt
	info.Negative = strings.Join(enhancement.Dedupe(negatives), enhancement.NegativeSeparator)

	route, err := s.providers.Resolve(req.Model, op == OperationEdit)
	if err != nil {
		return Result{}, err
	}

	resp, err := s.call(ctx, op, orgType, route, req, info)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		ID:     id.String(),
		Images: resp.Data,
		Prompt: info,
		Settings: Settings{
			Operation:         op,
			Provider:          route.Provider,
			Model:             route.Model,
			Size:              req.Size,
			OutputFormat:      req.OutputFormat,
			N:                 max(req.N, 1),
			Steps:             req.Steps,
			GuidanceScale:     req.GuidanceScale,
			Seed:              req.Seed,
			ConfigFingerprint: enh.Snapshot().Fingerprint(),
		},
		Verdict:   verdict,
		NSFWFlags: resp.NSFWFlags,
		Timestamp: s.now().UTC(),
	}
	if resp.Seed != nil {
		result.Settings.Seed = resp.Seed
	}

	keys := s.persist(ctx, orgType, id, result.Images)
	if err := s.history.Record(ctx, Record{
		ID:             id,
		OrgType:        orgType,
		Operation:      op,
		Model:          route.Model,
		OriginalPrompt: original,
		FinalPrompt:    info.Final,
		NegativePrompt: info.Negative,
		ConfigVersion:  result.Settings.ConfigFingerprint,
		ImageKeys:      keys,
		CreatedAt:      result.Timestamp,
	}); err != nil {
		s.logger.Warn("generation history write failed", zap.String("id", result.ID), zap.Error(err))
	}
	return result, nil
}

func (s *Service) call(ctx context.Context, op, orgType string, route providers.Route, req Request, info PromptInfo) (models.ImageResponse, error) {
	start := time.Now()
	var (
		resp models.ImageResponse
		err  error
	)
	if op == OperationEdit {
		resp, err = route.Generator.Edit(ctx, models.ImageEditRequest{
			OrgType:              orgType,
			Model:                route.Model,
			Prompt:               info.Final,
			NegativePrompt:       info.Negative,
			ImageURLs:            req.ImageURLs,
			Images:               req.Images,
			Size:                 req.Size,
			OutputFormat:         req.OutputFormat,
			N:                    req.N,
			Steps:                req.Steps,
			GuidanceScale:        req.GuidanceScale,
			Seed:                 req.Seed,
			DisableSafetyChecker: req.DisableSafetyChecker,
			User:                 req.User,
		})
	} else {
		resp, err = route.Generator.Generate(ctx, models.ImageRequest{
			OrgType:              orgType,
			Model:                route.Model,
			Prompt:               info.Final,
			NegativePrompt:       info.Negative,
			Size:                 req.Size,
			OutputFormat:         req.OutputFormat,
			N:                    req.N,
			Steps:                req.Steps,
			GuidanceScale:        req.GuidanceScale,
			Seed:                 req.Seed,
			DisableSafetyChecker: req.DisableSafetyChecker,
			User:                 req.User,
		})
	}
	if s.recorder != nil {
		s.recorder.RecordProviderLatency(orgType, route.Model, route.Provider, providerStatus(err), time.Since(start))
	}
	if err != nil {
		s.logger.Warn("image provider call failed",
			zap.String("org_type", orgType), zap.String("provider", route.Provider), zap.String("model", route.Model), zap.Error(err))
		return models.ImageResponse{}, fmt.Errorf("%s %s: %w", route.Provider, op, err)
	}
	return resp, nil
}

// providerStatus maps a provider error onto an HTTP style status for metrics.
func providerStatus(err error) int {
	var se *fal.StatusError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &se):
		return se.StatusCode
	case errors.Is(err, fal.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrImageOperationUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
