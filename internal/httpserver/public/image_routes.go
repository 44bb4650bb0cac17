package public

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/adapters/fal"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/apikeys"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/cache"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/generation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/httpserver/httputil"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/limits"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/models"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/providers"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/requestctx"
)

const maxEditImages = 16

type imageHandler struct {
	container *app.Container
}

type imageRequest struct {
	OrgType              string            `json:"orgType"`
	Prompt               string            `json:"prompt"`
	NegativePrompt       string            `json:"negative_prompt"`
	Model                string            `json:"model"`
	UseEnhancement       bool              `json:"use_enhancement"`
	Selections           map[string]string `json:"selections"`
	Intensity            *float64          `json:"intensity"`
	CustomText           string            `json:"custom_text"`
	Size                 string            `json:"size"`
	OutputFormat         string            `json:"output_format"`
	N                    int               `json:"n"`
	Steps                int               `json:"steps"`
	GuidanceScale        float64           `json:"guidance_scale"`
	Seed                 *int64            `json:"seed"`
	ImageURL             string            `json:"image_url"`
	ImageURLs            []string          `json:"image_urls"`
	DisableSafetyChecker bool              `json:"disable_safety_checker"`
	User                 string            `json:"user"`
}

func (r imageRequest) toGeneration() generation.Request {
	urls := make([]string, 0, len(r.ImageURLs)+1)
	if u := strings.TrimSpace(r.ImageURL); u != "" {
		urls = append(urls, u)
	}
	for _, u := range r.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return generation.Request{
		Prompt:               strings.TrimSpace(r.Prompt),
		NegativePrompt:       strings.TrimSpace(r.NegativePrompt),
		Model:                strings.TrimSpace(r.Model),
		UseEnhancement:       r.UseEnhancement,
		Selections:           r.Selections,
		Intensity:            r.Intensity,
		CustomText:           r.CustomText,
		Size:                 strings.TrimSpace(r.Size),
		OutputFormat:         strings.TrimSpace(r.OutputFormat),
		N:                    r.N,
		Steps:                r.Steps,
		GuidanceScale:        r.GuidanceScale,
		Seed:                 r.Seed,
		ImageURLs:            urls,
		DisableSafetyChecker: r.DisableSafetyChecker,
		User:                 strings.TrimSpace(r.User),
	}
}

func (h *imageHandler) generations(c *fiber.Ctx) error {
	var body imageRequest
	if err := c.BodyParser(&body); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	req := body.toGeneration()
	if req.Prompt == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "prompt is required")
	}
	if err := checkImageCount(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	}
	orgWithBody(c, body.OrgType)
	return h.run(c, generation.OperationGenerate, req)
}

func (h *imageHandler) edits(c *fiber.Ctx) error {
	var (
		req generation.Request
		org string
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		parsed, err := parseMultipartEdit(c)
		if err != nil {
			return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
		}
		req = parsed
		org = c.FormValue("orgType")
	} else {
		var body imageRequest
		if err := c.BodyParser(&body); err != nil {
			return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
		}
		req = body.toGeneration()
		org = body.OrgType
	}
	if req.Prompt == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "prompt is required")
	}
	if len(req.ImageURLs) == 0 && len(req.Images) == 0 {
		return httputil.WriteError(c, fiber.StatusBadRequest, "at least one image is required")
	}
	if len(req.ImageURLs)+len(req.Images) > maxEditImages {
		return httputil.WriteError(c, fiber.StatusBadRequest, "a maximum of 16 images are supported")
	}
	if err := checkImageCount(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	}
	orgWithBody(c, org)
	return h.run(c, generation.OperationEdit, req)
}

func (h *imageHandler) run(c *fiber.Ctx, op string, req generation.Request) error {
	ctx := userContext(c)
	rc, ok := requestctx.FromContext(ctx)
	if !ok || rc == nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, "request context missing")
	}
	req.OrgType = rc.OrgType

	idempotencyKey := cache.Key(c.Get("Idempotency-Key"), rc.OrgType, op)
	if idempotencyKey != "" {
		if data, ok := h.container.Idempotency.Get(ctx, idempotencyKey); ok {
			c.Set("Idempotent-Replayed", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(data)
		}
	}

	if err := h.container.ReserveImages(ctx, req.N); err != nil {
		if errors.Is(err, limits.ErrLimitExceeded) {
			return httputil.WriteError(c, fiber.StatusTooManyRequests, "image limit exceeded")
		}
		h.container.Logger.Warn("image allowance unavailable", zap.Error(err))
	}

	var (
		result generation.Result
		err    error
	)
	if op == generation.OperationEdit {
		result, err = h.container.Generation.Edit(ctx, req)
	} else {
		result, err = h.container.Generation.Generate(ctx, req)
	}
	if err != nil {
		return h.writeGenerationError(c, err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to encode response")
	}
	if idempotencyKey != "" {
		h.container.Idempotency.Set(ctx, idempotencyKey, payload)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(payload)
}

func (h *imageHandler) writeGenerationError(c *fiber.Ctx, err error) error {
	var blocked *generation.BlockedError
	switch {
	case errors.As(err, &blocked):
		return httputil.WriteErrorFields(c, fiber.StatusBadRequest, "content blocked by moderation", fiber.Map{
			"category": blocked.Verdict.Category,
			"reason":   blocked.Verdict.Reason,
		})
	case errors.Is(err, generation.ErrInvalidRequest):
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, providers.ErrProviderUnavailable):
		return httputil.WriteError(c, fiber.StatusBadRequest, "requested model provider is not available")
	case errors.Is(err, models.ErrImageOperationUnsupported):
		return httputil.WriteError(c, fiber.StatusBadRequest, "operation not supported by the selected model")
	case errors.Is(err, apikeys.ErrMissingKey):
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "image provider is not configured")
	case errors.Is(err, fal.ErrCircuitOpen):
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "image provider temporarily unavailable")
	}
	h.container.Logger.Warn("image provider call failed", zap.String("org_type", requestctx.OrgType(userContext(c))), zap.Error(err))
	return httputil.WriteError(c, fiber.StatusBadGateway, "image provider request failed")
}

func parseMultipartEdit(c *fiber.Ctx) (generation.Request, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return generation.Request{}, errors.New("multipart form required")
	}
	req := generation.Request{
		Prompt:         strings.TrimSpace(c.FormValue("prompt")),
		NegativePrompt: strings.TrimSpace(c.FormValue("negative_prompt")),
		Model:          strings.TrimSpace(c.FormValue("model")),
		CustomText:     c.FormValue("custom_text"),
		Size:           strings.TrimSpace(c.FormValue("size")),
		OutputFormat:   strings.TrimSpace(c.FormValue("output_format")),
		User:           strings.TrimSpace(c.FormValue("user")),
	}
	req.UseEnhancement, _ = strconv.ParseBool(c.FormValue("use_enhancement"))
	req.DisableSafetyChecker, _ = strconv.ParseBool(c.FormValue("disable_safety_checker"))
	if raw := strings.TrimSpace(c.FormValue("selections")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Selections); err != nil {
			return generation.Request{}, errors.New("selections must be a JSON object")
		}
	}
	if raw := strings.TrimSpace(c.FormValue("intensity")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return generation.Request{}, errors.New("intensity must be a number")
		}
		req.Intensity = &v
	}
	if raw := strings.TrimSpace(c.FormValue("steps")); raw != "" {
		if req.Steps, err = strconv.Atoi(raw); err != nil {
			return generation.Request{}, errors.New("steps must be an integer")
		}
	}
	if raw := strings.TrimSpace(c.FormValue("guidance_scale")); raw != "" {
		if req.GuidanceScale, err = strconv.ParseFloat(raw, 64); err != nil {
			return generation.Request{}, errors.New("guidance_scale must be a number")
		}
	}
	if raw := strings.TrimSpace(c.FormValue("seed")); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return generation.Request{}, errors.New("seed must be an integer")
		}
		req.Seed = &seed
	}
	if req.N, err = parseImageCount(c.FormValue("n")); err != nil {
		return generation.Request{}, err
	}
	for _, u := range form.Value["image_url"] {
		if u = strings.TrimSpace(u); u != "" {
			req.ImageURLs = append(req.ImageURLs, u)
		}
	}
	headers := form.File["image"]
	if len(headers) > maxEditImages {
		return generation.Request{}, errors.New("a maximum of 16 images are supported")
	}
	for _, fh := range headers {
		input, err := loadImageInput(fh)
		if err != nil {
			return generation.Request{}, errors.New("failed to read image upload")
		}
		req.Images = append(req.Images, input)
	}
	return req, nil
}

func checkImageCount(req *generation.Request) error {
	if req.N == 0 {
		req.N = 1
	}
	if req.N < 1 || req.N > 10 {
		return errors.New("n must be between 1 and 10")
	}
	if req.Intensity != nil && (*req.Intensity < 0 || *req.Intensity > 1) {
		return errors.New("intensity must be between 0 and 1")
	}
	return nil
}

func parseImageCount(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 1, nil
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.New("n must be between 1 and 10")
	}
	if val < 1 || val > 10 {
		return 0, errors.New("n must be between 1 and 10")
	}
	return val, nil
}

func loadImageInput(fh *multipart.FileHeader) (models.ImageInput, error) {
	file, err := fh.Open()
	if err != nil {
		return models.ImageInput{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return models.ImageInput{}, err
	}
	return models.ImageInput{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	}, nil
}
