package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sbsbridge/claimbridge/app/controllers"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

// GetFacilityTransactionsParams defines parameters for GetFacilityTransactions.
type GetFacilityTransactionsParams struct {
	Limit int `json:"limit,omitempty"`
}

// ServerInterface represents all server handlers of the v1 API.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (POST /normalize)
	PostNormalize(c *fiber.Ctx) error
	// (POST /validate)
	PostValidate(c *fiber.Ctx) error
	// (POST /sign)
	PostSign(c *fiber.Ctx) error
	// (POST /verify-signature)
	PostVerifySignature(c *fiber.Ctx) error
	// (GET /verify-certificate/{facility_id})
	GetVerifyCertificate(c *fiber.Ctx, facilityId uint) error
	// (POST /facility/{facility_id}/certificates/rotate)
	PostRotateCertificate(c *fiber.Ctx, facilityId uint) error
	// (POST /submit-claim)
	PostSubmitClaim(c *fiber.Ctx) error
	// (GET /transaction/{uuid})
	GetTransaction(c *fiber.Ctx, uuid string) error
	// (GET /facility/{facility_id}/transactions)
	GetFacilityTransactions(c *fiber.Ctx, facilityId uint, params GetFacilityTransactionsParams) error
	// (POST /claims)
	PostClaims(c *fiber.Ctx) error
	// (GET /stats/submissions)
	GetSubmissionStats(c *fiber.Ctx) error
}

// ServerInterfaceWrapper converts path and query parameters before calling
// the handler.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func badParam(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(claimerr.KindOf(err)), "message": err.Error()})
}

func (w *ServerInterfaceWrapper) GetVerifyCertificate(c *fiber.Ctx) error {
	facilityId, err := controllers.ParseFacilityID(c.Params("facility_id"))
	if err != nil {
		return badParam(c, err)
	}
	return w.Handler.GetVerifyCertificate(c, facilityId)
}

func (w *ServerInterfaceWrapper) PostRotateCertificate(c *fiber.Ctx) error {
	facilityId, err := controllers.ParseFacilityID(c.Params("facility_id"))
	if err != nil {
		return badParam(c, err)
	}
	return w.Handler.PostRotateCertificate(c, facilityId)
}

func (w *ServerInterfaceWrapper) GetTransaction(c *fiber.Ctx) error {
	return w.Handler.GetTransaction(c, c.Params("uuid"))
}

func (w *ServerInterfaceWrapper) GetFacilityTransactions(c *fiber.Ctx) error {
	facilityId, err := controllers.ParseFacilityID(c.Params("facility_id"))
	if err != nil {
		return badParam(c, err)
	}
	var params GetFacilityTransactionsParams
	if raw := c.Query("limit"); raw != "" {
		params.Limit = c.QueryInt("limit", -1)
		if params.Limit < 0 {
			return badParam(c, claimerr.New(claimerr.KindInvalidPayload, "invalid limit %q", raw))
		}
	}
	return w.Handler.GetFacilityTransactions(c, facilityId, params)
}

// RegisterHandlers registers every v1 route on router.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", si.GetPing)
	router.Post("/normalize", si.PostNormalize)
	router.Post("/validate", si.PostValidate)
	router.Post("/sign", si.PostSign)
	router.Post("/verify-signature", si.PostVerifySignature)
	router.Get("/verify-certificate/:facility_id", wrapper.GetVerifyCertificate)
	router.Post("/facility/:facility_id/certificates/rotate", wrapper.PostRotateCertificate)
	router.Post("/submit-claim", si.PostSubmitClaim)
	router.Get("/transaction/:uuid", wrapper.GetTransaction)
	router.Get("/facility/:facility_id/transactions", wrapper.GetFacilityTransactions)
	router.Post("/claims", si.PostClaims)
	router.Get("/stats/submissions", si.GetSubmissionStats)
}
