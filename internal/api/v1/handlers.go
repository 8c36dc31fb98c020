package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/sbsbridge/claimbridge/app/controllers"
)

// Controllers groups the controllers the API server delegates to.
type Controllers struct {
	Normalize  *controllers.NormalizeController
	Pricing    *controllers.PricingController
	Signature  *controllers.SignatureController
	Submission *controllers.SubmissionController
	Claim      *controllers.ClaimController
	Stats      *controllers.StatsController
}

// APIServer implements the ServerInterface
type APIServer struct {
	c Controllers
}

// NewAPIServer creates a new API server instance
func NewAPIServer(c Controllers) *APIServer {
	return &APIServer{c: c}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (s *APIServer) PostNormalize(c *fiber.Ctx) error {
	return s.c.Normalize.HandleNormalize(c)
}

// PostValidate prices a FHIR-shaped claim without signing or submitting it.
func (s *APIServer) PostValidate(c *fiber.Ctx) error {
	return s.c.Pricing.HandleValidate(c)
}

func (s *APIServer) PostSign(c *fiber.Ctx) error {
	return s.c.Signature.HandleSign(c)
}

func (s *APIServer) PostVerifySignature(c *fiber.Ctx) error {
	return s.c.Signature.HandleVerifySignature(c)
}

func (s *APIServer) GetVerifyCertificate(c *fiber.Ctx, facilityId uint) error {
	return s.c.Signature.HandleVerifyCertificate(c, facilityId)
}

// PostRotateCertificate activates another stored certificate for the
// facility.
func (s *APIServer) PostRotateCertificate(c *fiber.Ctx, facilityId uint) error {
	return s.c.Signature.HandleRotateCertificate(c, facilityId)
}

// PostSubmitClaim answers 202 when the submission outlives the wait timeout.
func (s *APIServer) PostSubmitClaim(c *fiber.Ctx) error {
	return s.c.Submission.HandleSubmitClaim(c)
}

func (s *APIServer) GetTransaction(c *fiber.Ctx, uuid string) error {
	return s.c.Submission.HandleGetTransaction(c, uuid)
}

func (s *APIServer) GetFacilityTransactions(c *fiber.Ctx, facilityId uint, params GetFacilityTransactionsParams) error {
	return s.c.Submission.HandleFacilityTransactions(c, facilityId, params.Limit)
}

func (s *APIServer) PostClaims(c *fiber.Ctx) error {
	return s.c.Claim.HandleProcessClaim(c)
}

func (s *APIServer) GetSubmissionStats(c *fiber.Ctx) error {
	return s.c.Stats.HandleSubmissionStats(c)
}
