package apiv1

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const documentPath = "../../../public/docs/v1/openapi.yml"

// recordingServer answers 204 and remembers the parsed parameters.
type recordingServer struct {
	facilityID uint
	uuid       string
	limit      int
}

func (r *recordingServer) ok(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }

func (r *recordingServer) GetPing(c *fiber.Ctx) error             { return r.ok(c) }
func (r *recordingServer) PostNormalize(c *fiber.Ctx) error       { return r.ok(c) }
func (r *recordingServer) PostValidate(c *fiber.Ctx) error        { return r.ok(c) }
func (r *recordingServer) PostSign(c *fiber.Ctx) error            { return r.ok(c) }
func (r *recordingServer) PostVerifySignature(c *fiber.Ctx) error { return r.ok(c) }
func (r *recordingServer) PostSubmitClaim(c *fiber.Ctx) error     { return r.ok(c) }
func (r *recordingServer) PostClaims(c *fiber.Ctx) error          { return r.ok(c) }
func (r *recordingServer) GetSubmissionStats(c *fiber.Ctx) error  { return r.ok(c) }

func (r *recordingServer) GetVerifyCertificate(c *fiber.Ctx, facilityId uint) error {
	r.facilityID = facilityId
	return r.ok(c)
}

func (r *recordingServer) PostRotateCertificate(c *fiber.Ctx, facilityId uint) error {
	r.facilityID = facilityId
	return r.ok(c)
}

func (r *recordingServer) GetTransaction(c *fiber.Ctx, uuid string) error {
	r.uuid = uuid
	return r.ok(c)
}

func (r *recordingServer) GetFacilityTransactions(c *fiber.Ctx, facilityId uint, params GetFacilityTransactionsParams) error {
	r.facilityID = facilityId
	r.limit = params.Limit
	return r.ok(c)
}

func TestRegisterHandlers_ParsesParameters(t *testing.T) {
	srv := &recordingServer{}
	app := fiber.New()
	RegisterHandlers(app.Group("/api/v1"), srv)

	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/api/v1/verify-certificate/4", 204},
		{"GET", "/api/v1/verify-certificate/zero", 400},
		{"GET", "/api/v1/facility/3/transactions?limit=25", 204},
		{"GET", "/api/v1/facility/3/transactions?limit=many", 400},
		{"GET", "/api/v1/transaction/abc", 204},
		{"POST", "/api/v1/facility/0/certificates/rotate", 400},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Equal(t, uint(3), srv.facilityID)
	assert.Equal(t, 25, srv.limit)
	assert.Equal(t, "abc", srv.uuid)
}

func TestDocumentDescribesEveryRoute(t *testing.T) {
	doc, err := LoadDocument(context.Background(), documentPath)
	require.NoError(t, err)

	app := fiber.New()
	v1 := app.Group("/")
	RegisterHandlers(v1, &recordingServer{})

	var routes [][2]string
	for _, r := range app.GetRoutes(true) {
		if r.Method == fiber.MethodHead {
			continue
		}
		routes = append(routes, [2]string{r.Method, r.Path})
	}
	require.NotEmpty(t, routes)
	assert.Empty(t, UndocumentedRoutes(doc, routes))
}

func TestToOpenAPIPath(t *testing.T) {
	assert.Equal(t, "/facility/{facility_id}/transactions", toOpenAPIPath("/facility/:facility_id/transactions"))
}
