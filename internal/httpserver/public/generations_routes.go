package public

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/httpserver/httputil"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/requestctx"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/storage/blob"
)

type generationsHandler struct {
	container *app.Container
}

// download streams a persisted image. Callers only see keys under their own
// organization.
func (h *generationsHandler) download(c *fiber.Ctx) error {
	if h.container.Blob == nil {
		return httputil.WriteError(c, fiber.StatusNotFound, "storage is disabled")
	}
	rest, err := url.PathUnescape(c.Params("*"))
	if err != nil || rest == "" || strings.Contains(rest, "..") {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid key")
	}
	org := requestctx.OrgType(userContext(c))
	if !strings.HasPrefix(rest, org+"/") {
		return httputil.WriteError(c, fiber.StatusNotFound, "not found")
	}

	body, info, err := h.container.Blob.Get(userContext(c), "generations/"+rest)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return httputil.WriteError(c, fiber.StatusNotFound, "not found")
		}
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid key")
	}
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	if info.Size > 0 {
		return c.SendStream(body, int(info.Size))
	}
	return c.SendStream(body)
}
