package app

import (
	"strings"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/requestctx"
)

// BuildRequestContext normalizes the caller-supplied organization type into
// the runtime request context shared by handlers and the pipeline. Empty
// values fall back to the general profile.
func BuildRequestContext(rawOrgType, requestID string) *requestctx.Context {
	org := moderation.NormalizeOrgType(strings.TrimSpace(rawOrgType))
	if org == "" {
		org = moderation.DefaultOrgType
	}
	return requestctx.New(org, strings.TrimSpace(requestID))
}
