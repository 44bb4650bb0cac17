package requestctx

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const fiberLocalsKey = "requestctx"

// Key is the typed context key used for storing the RequestContext.
var Key contextKey = "image-studio/requestctx"

// Context carries the per-request organization and correlation id.
type Context struct {
	RequestID string
	// OrgType is the normalized organization type used for moderation,
	// branding, keys and limits.
	OrgType string
}

// New returns a Context for orgType, reusing requestID when set.
func New(orgType, requestID string) *Context {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &Context{RequestID: requestID, OrgType: orgType}
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok
}

// OrgType returns the organization type stored in ctx, or "".
func OrgType(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok && rc != nil {
		return rc.OrgType
	}
	return ""
}

// FiberLocalsKey returns the key used in fiber.Locals for request context storage.
func FiberLocalsKey() string {
	return fiberLocalsKey
}
