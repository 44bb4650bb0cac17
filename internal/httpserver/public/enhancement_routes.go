package public

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/enhancement"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/httpserver/httputil"
)

type enhancementHandler struct {
	container *app.Container
}

type enhancementConfigResponse struct {
	Config      *enhancement.Config `json:"config"`
	Fingerprint string              `json:"fingerprint"`
	Origin      string              `json:"origin"`
	LoadedAt    time.Time           `json:"loaded_at"`
}

func (h *enhancementHandler) config(c *fiber.Ctx) error {
	snap := h.container.Enhancements.Current()
	return c.JSON(enhancementConfigResponse{
		Config:      snap.Config(),
		Fingerprint: snap.Fingerprint(),
		Origin:      snap.Origin(),
		LoadedAt:    snap.LoadedAt(),
	})
}

type enhancementOptionsResponse struct {
	Options  map[string][]string `json:"options"`
	Defaults map[string]string   `json:"defaults"`
	Weights  map[string]float64  `json:"weights"`
	Params   map[string]any      `json:"params,omitempty"`
	Version  string              `json:"version"`
}

func (h *enhancementHandler) options(c *fiber.Ctx) error {
	enhancer := h.container.Enhancer()
	return c.JSON(enhancementOptionsResponse{
		Options:  enhancer.ListOptions(),
		Defaults: enhancer.Defaults(),
		Weights:  enhancer.Weights(),
		Params:   enhancer.Params(),
		Version:  enhancer.Snapshot().Version(),
	})
}

type previewRequest struct {
	Prompt     string            `json:"prompt"`
	Selections map[string]string `json:"selections"`
	Mode       string            `json:"mode"`
	Intensity  *float64          `json:"intensity"`
	CustomText string            `json:"custom_text"`
	WithText   bool              `json:"with_text"`
}

type previewResponse struct {
	enhancement.Result
	FinalPrompt string                  `json:"final_prompt"`
	Text        *enhancement.TextResult `json:"text,omitempty"`
	Safety      []string                `json:"safety_negatives,omitempty"`
}

// preview runs the canonical assembly without calling a provider. mode picks
// the generate or edit enhancement text.
func (h *enhancementHandler) preview(c *fiber.Ctx) error {
	var req previewRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Intensity != nil && (*req.Intensity < 0 || *req.Intensity > 1) {
		return httputil.WriteError(c, fiber.StatusBadRequest, "intensity must be between 0 and 1")
	}

	enhancer := h.container.Enhancer()
	result := enhancer.Generate(req.Prompt, req.Selections)
	resp := previewResponse{Result: result, FinalPrompt: result.EnhancedPrompt}

	mode := enhancement.ParseMode(req.Mode)
	if req.WithText || req.CustomText != "" {
		text := enhancer.ApplyText(result.EnhancedPrompt, enhancement.TextOptions{
			Mode:        mode,
			UseEditText: h.container.Config.Enhancement.EditTextMode == config.EditTextModeEdit,
			Intensity:   req.Intensity,
			CustomText:  req.CustomText,
		})
		resp.Text = &text
		resp.FinalPrompt = text.Prompt
	}
	if mode == enhancement.ModeEdit {
		resp.Safety = enhancer.SafetyNegatives(mode)
	}
	return c.JSON(resp)
}
