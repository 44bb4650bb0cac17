package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/httpserver/httputil"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/requestctx"
)

type moderationHandler struct {
	container *app.Container
}

type moderationRequest struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl"`
	OrgType  string `json:"orgType"`
}

func (h *moderationHandler) check(c *fiber.Ctx) error {
	var req moderationRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	in := moderation.Input{Prompt: req.Prompt, ImageURL: req.ImageURL}
	if in.Empty() {
		return httputil.WriteError(c, fiber.StatusBadRequest, "prompt or imageUrl is required")
	}
	ctx := orgWithBody(c, req.OrgType)
	verdict := h.container.Moderator.Check(ctx, in, requestctx.OrgType(ctx))
	return c.JSON(verdict)
}

type moderationConfigResponse struct {
	Enabled  bool                     `json:"enabled"`
	Profile  moderation.PublicProfile `json:"profile"`
	Profiles []string                 `json:"profiles"`
}

func (h *moderationHandler) config(c *fiber.Ctx) error {
	registry := h.container.Moderator.Registry()
	return c.JSON(moderationConfigResponse{
		Enabled:  h.container.Moderator.Enabled(),
		Profile:  registry.PublicView(requestctx.OrgType(userContext(c))),
		Profiles: registry.Names(),
	})
}
