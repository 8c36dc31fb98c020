package callercontext

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Anonymous is the caller id used when none was supplied.
const Anonymous = "anonymous"

// CallerContext represents the caller of an API request
type CallerContext struct {
	CallerID      string `json:"caller_id"`
	Authenticated bool   `json:"authenticated"`
}

// GetCallerContext retrieves the caller context from fiber context
// Returns an anonymous context if none is set
func GetCallerContext(c *fiber.Ctx) CallerContext {
	if ctx, ok := c.Locals(KeyCallerContext).(CallerContext); ok {
		return ctx
	}
	return CallerContext{CallerID: Anonymous}
}

// GetCallerID returns the current caller id
func GetCallerID(c *fiber.Ctx) string {
	return GetCallerContext(c).CallerID
}

type ctxKey struct{}

// WithCaller stores the caller id on ctx for code outside the handler.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, callerID)
}

// FromContext returns the caller id stored by WithCaller.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return Anonymous
}
