package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sbsbridge/claimbridge/internal/pkg/callercontext"
)

// maxCallerIDLength bounds the caller id carried into logs.
const maxCallerIDLength = 128

// CallerContextMiddleware sets up the caller context for every request from
// the X-Caller-ID header. Authentication, if any, runs after it.
func CallerContextMiddleware(c *fiber.Ctx) error {
	callerID := strings.TrimSpace(c.Get(callercontext.HeaderCallerID))
	if callerID == "" {
		callerID = callercontext.Anonymous
	}
	if len(callerID) > maxCallerIDLength {
		callerID = callerID[:maxCallerIDLength]
	}

	c.Locals(callercontext.KeyCallerContext, callercontext.CallerContext{CallerID: callerID})
	c.Locals(callercontext.KeyCallerID, callerID)
	c.SetUserContext(callercontext.WithCaller(c.UserContext(), callerID))
	return c.Next()
}
