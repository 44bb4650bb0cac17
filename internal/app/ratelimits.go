package app

import (
	"context"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/limits"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/requestctx"
)

// RateLimitPolicy converts configured limits into a limiter policy. Override
// keys are normalized the same way request org types are.
func RateLimitPolicy(cfg config.RateLimitConfig) limits.Policy {
	policy := limits.Policy{
		Default: limits.LimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			ImagesPerMinute:   cfg.ImagesPerMinute,
			ParallelRequests:  cfg.ParallelRequests,
		},
	}
	if len(cfg.Overrides) == 0 {
		return policy
	}
	policy.Overrides = make(map[string]limits.LimitConfig, len(cfg.Overrides))
	for org, o := range cfg.Overrides {
		policy.Overrides[moderation.NormalizeOrgType(org)] = limits.LimitConfig{
			RequestsPerMinute: o.RequestsPerMinute,
			ImagesPerMinute:   o.ImagesPerMinute,
			ParallelRequests:  o.ParallelRequests,
		}
	}
	return policy
}

// EffectiveRateLimits returns the limits that apply to orgType.
func (c *Container) EffectiveRateLimits(orgType string) limits.LimitConfig {
	return c.RateLimits.For(orgType)
}

// AcquireRateLimits applies the per-minute and parallel limits for the org
// carried by ctx. The returned release must be called once the request ends.
func (c *Container) AcquireRateLimits(ctx context.Context) (string, limits.LimitConfig, func(), error) {
	org := requestctx.OrgType(ctx)
	if org == "" {
		org = moderation.DefaultOrgType
	}
	key := "org:" + org
	cfg := c.EffectiveRateLimits(org)
	release, err := c.RateLimiter.Acquire(ctx, key, cfg)
	if err != nil {
		return "", limits.LimitConfig{}, func() {}, err
	}
	return key, cfg, release, nil
}

// ReserveImages draws n images from the org's per-minute image budget.
func (c *Container) ReserveImages(ctx context.Context, n int) error {
	org := requestctx.OrgType(ctx)
	if org == "" {
		org = moderation.DefaultOrgType
	}
	return c.RateLimiter.ImageAllowance(ctx, "org:"+org, n, c.EffectiveRateLimits(org))
}
