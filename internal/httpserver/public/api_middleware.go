package public

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/httpserver/httputil"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/limits"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/requestctx"
)

const orgTypeHeader = "X-Org-Type"

// orgContext resolves the caller's organization type from the X-Org-Type
// header or the orgType query parameter and stores the request context.
func orgContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(orgTypeHeader))
		if raw == "" {
			raw = strings.TrimSpace(c.Query("orgType"))
		}
		reqID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		rc := app.BuildRequestContext(raw, reqID)

		c.Locals(requestctx.FiberLocalsKey(), rc)
		c.SetUserContext(requestctx.WithContext(userContext(c), rc))
		c.Set(orgTypeHeader, rc.OrgType)
		return c.Next()
	}
}

// rateLimit applies the per-org request and parallel limits.
func rateLimit(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, _, release, err := container.AcquireRateLimits(userContext(c))
		if err != nil {
			if errors.Is(err, limits.ErrLimitExceeded) {
				return httputil.WriteError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
			}
			// limiter outages should not take the studio down
			container.Logger.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		defer release()
		return c.Next()
	}
}

// orgWithBody lets JSON bodies carry orgType when neither the header nor the
// query supplied one.
func orgWithBody(c *fiber.Ctx, bodyOrg string) context.Context {
	ctx := userContext(c)
	bodyOrg = strings.TrimSpace(bodyOrg)
	if bodyOrg == "" || c.Get(orgTypeHeader) != "" || c.Query("orgType") != "" {
		return ctx
	}
	rc := app.BuildRequestContext(bodyOrg, "")
	if prev, ok := requestctx.FromContext(ctx); ok && prev != nil {
		rc.RequestID = prev.RequestID
	}
	c.Locals(requestctx.FiberLocalsKey(), rc)
	ctx = requestctx.WithContext(ctx, rc)
	c.SetUserContext(ctx)
	c.Set(orgTypeHeader, rc.OrgType)
	return ctx
}

func userContext(c *fiber.Ctx) context.Context {
	if c == nil {
		return context.Background()
	}
	if uc := c.UserContext(); uc != nil {
		return uc
	}
	return context.Background()
}
