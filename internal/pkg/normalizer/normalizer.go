// Package normalizer translates facility-local service codes into canonical
// SBS catalog codes.
package normalizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/app/repository"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

const shortlistSize = 20

// Result is the outcome of a successful normalization.
type Result struct {
	CanonicalCode string  `json:"sbs_mapped_code"`
	Confidence    float64 `json:"confidence"`
	Source        string  `json:"mapping_source"`
}

// ResultCache stores provider answers. *cache.JSONStore satisfies it.
type ResultCache interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Store(ctx context.Context, key string, v any) error
}

// Normalizer resolves codes via manual mappings, the configured provider and
// finally an offline lexical match against the catalog.
type Normalizer struct {
	mappings repository.MappingRepository
	catalog  repository.CatalogRepository
	provider Provider
	cache    ResultCache
	cfg      Config
}

// New creates a normalizer. provider and cache may be nil.
func New(mappings repository.MappingRepository, catalog repository.CatalogRepository, provider Provider, cache ResultCache, cfg Config) *Normalizer {
	return &Normalizer{
		mappings: mappings,
		catalog:  catalog,
		provider: provider,
		cache:    cache,
		cfg:      cfg,
	}
}

// ProviderName reports the active provider, "none" when unset.
func (n *Normalizer) ProviderName() string {
	if n.provider == nil {
		return ProviderNone
	}
	return n.provider.Name()
}

func (n *Normalizer) Normalize(ctx context.Context, facilityID uint, internalCode, description string) (*Result, error) {
	internalCode = strings.TrimSpace(internalCode)
	if facilityID == 0 || internalCode == "" {
		return nil, claimerr.New(claimerr.KindInvalidPayload, "facility_id and internal_code are required")
	}

	mapping, err := n.mappings.FindActive(ctx, facilityID, internalCode)
	switch {
	case err == nil:
		return &Result{CanonicalCode: mapping.CanonicalCode, Confidence: 1.0, Source: models.MappingSourceManual}, nil
	case !errors.Is(err, claimerr.ErrNotFound):
		return nil, err
	}

	key := cacheKey(facilityID, internalCode, description)
	if n.cache != nil {
		var cached Result
		found, err := n.cache.Load(ctx, key, &cached)
		if err != nil {
			log.Warnf("[Normalizer] cache read failed for %s: %v", internalCode, err)
		} else if found {
			return &cached, nil
		}
	}

	catalog, err := n.catalog.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ranked := rankLexical(internalCode, description, catalog, shortlistSize)

	best := 0.0
	if s := n.suggest(ctx, facilityID, internalCode, description, catalog, ranked); s != nil {
		if s.Confidence >= n.cfg.MinConfidence {
			res := &Result{CanonicalCode: s.CanonicalCode, Confidence: roundConfidence(s.Confidence), Source: models.MappingSourceAI}
			n.remember(ctx, key, res)
			return res, nil
		}
		best = s.Confidence
	}

	if len(ranked) > 0 {
		top := ranked[0]
		if top.Score >= n.cfg.MinConfidence {
			return &Result{CanonicalCode: top.Entry.CanonicalCode, Confidence: top.Score, Source: models.MappingSourceFallback}, nil
		}
		if top.Score > best {
			best = top.Score
		}
	}

	if best > 0 {
		low := claimerr.New(claimerr.KindLowConfidenceMapping, "best candidate %.4f below threshold %.2f", best, n.cfg.MinConfidence)
		return nil, claimerr.Wrap(claimerr.KindMappingNotFound, low, "no mapping for %s at facility %d", internalCode, facilityID)
	}
	return nil, claimerr.New(claimerr.KindMappingNotFound, "no mapping for %s at facility %d", internalCode, facilityID)
}

// suggest asks the provider for a candidate. Provider failures and answers
// outside the active catalog are logged and treated as no candidate.
func (n *Normalizer) suggest(ctx context.Context, facilityID uint, internalCode, description string, catalog []models.CatalogEntry, ranked []lexicalMatch) *Suggestion {
	if n.provider == nil {
		return nil
	}

	shortlist := make([]models.CatalogEntry, 0, len(ranked))
	for _, m := range ranked {
		shortlist = append(shortlist, m.Entry)
	}

	pctx := ctx
	if n.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, n.cfg.ProviderTimeout)
		defer cancel()
	}

	s, err := n.provider.Suggest(pctx, SuggestRequest{
		FacilityID:   facilityID,
		InternalCode: internalCode,
		Description:  description,
		Shortlist:    shortlist,
	})
	if err != nil {
		log.Warnf("[Normalizer] provider %s failed for %s: %v", n.provider.Name(), internalCode, err)
		return nil
	}
	for _, e := range catalog {
		if e.CanonicalCode == s.CanonicalCode {
			return s
		}
	}
	log.Warnf("[Normalizer] provider %s suggested unknown code %q for %s", n.provider.Name(), s.CanonicalCode, internalCode)
	return nil
}

func (n *Normalizer) remember(ctx context.Context, key string, res *Result) {
	if n.cache == nil {
		return
	}
	if err := n.cache.Store(ctx, key, res); err != nil {
		log.Warnf("[Normalizer] cache write failed: %v", err)
	}
}

func cacheKey(facilityID uint, internalCode, description string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(description))))
	return fmt.Sprintf("%d:%s:%s", facilityID, internalCode, hex.EncodeToString(sum[:8]))
}
