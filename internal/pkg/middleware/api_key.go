package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/sbsbridge/claimbridge/internal/pkg/callercontext"
)

// APIKeyAuthMiddleware authenticates requests carrying one of keys in the
// X-API-Key header or as a bearer token. With no keys configured every
// request passes unauthenticated.
func APIKeyAuthMiddleware(keys []string) fiber.Handler {
	digests := make([][32]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		log.Warn("[API] No API keys configured, authentication disabled")
	}

	return func(c *fiber.Ctx) error {
		if len(digests) == 0 {
			return c.Next()
		}

		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		if !matchesAny(digests, apiKey) {
			log.Warnf("[API] Invalid API key from %s (caller %s)", c.IP(), callercontext.GetCallerID(c))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		callerCtx := callercontext.GetCallerContext(c)
		callerCtx.Authenticated = true
		c.Locals(callercontext.KeyCallerContext, callerCtx)
		c.Locals(callercontext.KeyAuthenticated, true)

		return c.Next()
	}
}

// matchesAny compares digests so every candidate costs the same.
func matchesAny(digests [][32]byte, apiKey string) bool {
	sum := sha256.Sum256([]byte(apiKey))
	found := 0
	for _, d := range digests {
		found |= subtle.ConstantTimeCompare(d[:], sum[:])
	}
	return found == 1
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
