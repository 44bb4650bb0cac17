package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
)

// Register wires up the studio API routes.
func Register(app *fiber.App, container *app.Container) {
	group := app.Group("/api/v1", orgContext(), rateLimit(container))

	moderation := &moderationHandler{container: container}
	group.Post("/moderation", moderation.check)
	group.Get("/moderation/config", moderation.config)

	enhancement := &enhancementHandler{container: container}
	group.Get("/enhancement/config", enhancement.config)
	group.Get("/enhancement/options", enhancement.options)
	group.Post("/enhancement/preview", enhancement.preview)

	images := &imageHandler{container: container}
	group.Post("/images/generations", images.generations)
	group.Post("/images/edits", images.edits)

	generations := &generationsHandler{container: container}
	group.Get("/generations/*", generations.download)
}
