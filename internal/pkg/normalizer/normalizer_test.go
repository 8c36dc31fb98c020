package normalizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/cache"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

type stubMappings struct {
	rows map[string]models.CodeMapping
	err  error
}

func (s *stubMappings) FindActive(_ context.Context, facilityID uint, internalCode string) (*models.CodeMapping, error) {
	if s.err != nil {
		return nil, s.err
	}
	if m, ok := s.rows[internalCode]; ok && m.FacilityID == facilityID {
		return &m, nil
	}
	return nil, claimerr.New(claimerr.KindNotFound, "code mapping not found")
}

func (s *stubMappings) Create(context.Context, *models.CodeMapping) error { return nil }

type stubCatalog struct {
	entries []models.CatalogEntry
}

func (s *stubCatalog) GetByCode(_ context.Context, code string) (*models.CatalogEntry, error) {
	for _, e := range s.entries {
		if e.CanonicalCode == code {
			return &e, nil
		}
	}
	return nil, claimerr.ErrNotFound
}

func (s *stubCatalog) GetByCodes(context.Context, []string) (map[string]models.CatalogEntry, error) {
	return nil, nil
}

func (s *stubCatalog) ListActive(context.Context) ([]models.CatalogEntry, error) {
	return s.entries, nil
}

func (s *stubCatalog) ListBundleRules(context.Context) ([]models.BundleRule, error) { return nil, nil }

type stubProvider struct {
	suggestion *Suggestion
	err        error
	calls      int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Suggest(context.Context, SuggestRequest) (*Suggestion, error) {
	p.calls++
	return p.suggestion, p.err
}

func testCatalog() *stubCatalog {
	return &stubCatalog{entries: []models.CatalogEntry{
		{CanonicalCode: "SBS-LAB-001", Description: "Complete blood count", BasePrice: decimal.RequireFromString("50.00")},
		{CanonicalCode: "SBS-RAD-010", Description: "Chest x-ray two views", BasePrice: decimal.RequireFromString("120.00")},
	}}
}

func testConfig() Config {
	return Config{MinConfidence: 0.60, ProviderTimeout: time.Second}
}

func TestNormalize_ManualMapping(t *testing.T) {
	mappings := &stubMappings{rows: map[string]models.CodeMapping{
		"LAB-CBC-01": {FacilityID: 1, InternalCode: "LAB-CBC-01", CanonicalCode: "SBS-LAB-001", Confidence: 1, IsActive: true},
	}}
	provider := &stubProvider{}
	n := New(mappings, testCatalog(), provider, nil, testConfig())

	res, err := n.Normalize(context.Background(), 1, "LAB-CBC-01", "CBC")
	require.NoError(t, err)
	assert.Equal(t, &Result{CanonicalCode: "SBS-LAB-001", Confidence: 1.0, Source: "manual"}, res)
	assert.Zero(t, provider.calls)
}

func TestNormalize_Paths(t *testing.T) {
	tests := []struct {
		name        string
		provider    *stubProvider
		code        string
		description string
		wantCode    string
		wantSource  string
		wantErr     error
		wantLow     bool
	}{
		{
			name:        "provider above threshold",
			provider:    &stubProvider{suggestion: &Suggestion{CanonicalCode: "SBS-RAD-010", Confidence: 0.9}},
			code:        "RAD-CXR",
			description: "chest xray",
			wantCode:    "SBS-RAD-010",
			wantSource:  models.MappingSourceAI,
		},
		{
			name:        "provider failure falls back to lexical",
			provider:    &stubProvider{err: errors.New("dial tcp: connection refused")},
			code:        "LAB-CBC-02",
			description: "complete blood count test",
			wantCode:    "SBS-LAB-001",
			wantSource:  models.MappingSourceFallback,
		},
		{
			name:        "provider low confidence falls back to lexical",
			provider:    &stubProvider{suggestion: &Suggestion{CanonicalCode: "SBS-RAD-010", Confidence: 0.2}},
			code:        "LAB-CBC-02",
			description: "complete blood count",
			wantCode:    "SBS-LAB-001",
			wantSource:  models.MappingSourceFallback,
		},
		{
			name:        "unknown suggested code is ignored",
			provider:    &stubProvider{suggestion: &Suggestion{CanonicalCode: "SBS-NOPE", Confidence: 0.99}},
			code:        "LAB-CBC-02",
			description: "complete blood count",
			wantCode:    "SBS-LAB-001",
			wantSource:  models.MappingSourceFallback,
		},
		{
			name:        "best candidate below threshold",
			provider:    &stubProvider{suggestion: &Suggestion{CanonicalCode: "SBS-RAD-010", Confidence: 0.3}},
			code:        "VIT-BP",
			description: "blood pressure",
			wantErr:     claimerr.ErrMappingNotFound,
			wantLow:     true,
		},
		{
			name:        "no candidate at all",
			provider:    &stubProvider{err: context.DeadlineExceeded},
			code:        "ZZZ-1",
			description: "unrelated words",
			wantErr:     claimerr.ErrMappingNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(&stubMappings{}, testCatalog(), tt.provider, nil, testConfig())
			res, err := n.Normalize(context.Background(), 1, tt.code, tt.description)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.wantLow {
					assert.ErrorIs(t, err, claimerr.ErrLowConfidenceMapping)
				} else {
					assert.NotErrorIs(t, err, claimerr.ErrLowConfidenceMapping)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, res.CanonicalCode)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.GreaterOrEqual(t, res.Confidence, 0.60)
		})
	}
}

func TestNormalize_OfflineWithoutProvider(t *testing.T) {
	n := New(&stubMappings{}, testCatalog(), nil, nil, testConfig())

	res, err := n.Normalize(context.Background(), 1, "LAB-CBC-02", "complete blood count test")
	require.NoError(t, err)
	assert.Equal(t, "SBS-LAB-001", res.CanonicalCode)
	assert.InDelta(t, 0.9571, res.Confidence, 0.0001)
	assert.Equal(t, ProviderNone, n.ProviderName())
}

func TestNormalize_Idempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewJSONStore(rdb, "normalize:", time.Hour)

	provider := &stubProvider{suggestion: &Suggestion{CanonicalCode: "SBS-RAD-010", Confidence: 0.87}}
	n := New(&stubMappings{}, testCatalog(), provider, store, testConfig())

	first, err := n.Normalize(context.Background(), 1, "RAD-CXR", "chest xray")
	require.NoError(t, err)

	provider.suggestion = &Suggestion{CanonicalCode: "SBS-LAB-001", Confidence: 0.95}
	second, err := n.Normalize(context.Background(), 1, "RAD-CXR", "chest xray")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.calls)

	third, err := New(&stubMappings{}, testCatalog(), nil, nil, testConfig()).
		Normalize(context.Background(), 1, "LAB-CBC-02", "complete blood count")
	require.NoError(t, err)
	fourth, err := New(&stubMappings{}, testCatalog(), nil, nil, testConfig()).
		Normalize(context.Background(), 1, "LAB-CBC-02", "complete blood count")
	require.NoError(t, err)
	assert.Equal(t, third, fourth)
}

func TestNormalize_RepositoryFailurePropagates(t *testing.T) {
	down := claimerr.New(claimerr.KindServiceUnavailable, "database pool saturated")
	n := New(&stubMappings{err: down}, testCatalog(), nil, nil, testConfig())

	_, err := n.Normalize(context.Background(), 1, "LAB-CBC-01", "")
	assert.ErrorIs(t, err, claimerr.ErrServiceUnavailable)
}

func TestNormalize_RejectsEmptyInput(t *testing.T) {
	n := New(&stubMappings{}, testCatalog(), nil, nil, testConfig())

	_, err := n.Normalize(context.Background(), 0, "LAB", "")
	assert.ErrorIs(t, err, claimerr.ErrInvalidPayload)
	_, err = n.Normalize(context.Background(), 1, "  ", "")
	assert.ErrorIs(t, err, claimerr.ErrInvalidPayload)
}

func TestRankLexical_TieBreaksOnCode(t *testing.T) {
	catalog := []models.CatalogEntry{
		{CanonicalCode: "SBS-B", Description: "blood panel"},
		{CanonicalCode: "SBS-A", Description: "blood panel"},
	}
	ranked := rankLexical("X", "blood panel", catalog, 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, "SBS-A", ranked[0].Entry.CanonicalCode)
	assert.Equal(t, 1.0, ranked[0].Score)
}
