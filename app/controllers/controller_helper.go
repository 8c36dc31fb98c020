package controllers

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/sbsbridge/claimbridge/internal/pkg/callercontext"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

var validate = validator.New()

// respondError renders err as {"error": kind, "message": ...} with the
// status mapped from its kind. Internal details are only logged.
func respondError(c *fiber.Ctx, err error) error {
	status := claimerr.HTTPStatus(err)
	kind := claimerr.KindOf(err)
	message := err.Error()
	if status >= fiber.StatusInternalServerError {
		fiberlog.Errorf("[API] %s %s (caller %s): %v", c.Method(), c.Path(), callercontext.GetCallerID(c), err)
		if kind == claimerr.KindInternal {
			message = "internal error"
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": string(kind), "message": message})
}

// parseBody decodes the JSON body into dst and validates it.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return claimerr.Wrap(claimerr.KindInvalidPayload, err, "request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return claimerr.New(claimerr.KindInvalidPayload, "%s failed on %q", verrs[0].Field(), verrs[0].Tag())
		}
		return claimerr.Wrap(claimerr.KindInvalidPayload, err, "request body")
	}
	return nil
}

// ParseFacilityID parses a facility id path parameter.
func ParseFacilityID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, claimerr.New(claimerr.KindInvalidPayload, "invalid facility id %q", raw)
	}
	return uint(id), nil
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// rawOrString returns body as raw JSON when it is valid JSON, else as a
// string. Empty bodies render as null.
func rawOrString(body string) interface{} {
	if body == "" {
		return nil
	}
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	return body
}
