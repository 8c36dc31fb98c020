package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sbsbridge/claimbridge/app/models"
)

// Suggestion is a provider's candidate canonical code.
type Suggestion struct {
	CanonicalCode string  `json:"sbs_code"`
	Confidence    float64 `json:"confidence"`
}

// SuggestRequest carries what a provider may use to pick a code. Shortlist
// holds the closest catalog entries found lexically; providers should answer
// with one of them.
type SuggestRequest struct {
	FacilityID   uint
	InternalCode string
	Description  string
	Shortlist    []models.CatalogEntry
}

// Provider suggests a canonical code for a facility-local service.
type Provider interface {
	Name() string
	Suggest(ctx context.Context, req SuggestRequest) (*Suggestion, error)
}

const systemPrompt = "You map hospital service codes to the Saudi Billing System (SBS) catalog. " +
	"Answer only with JSON of the form {\"sbs_code\": \"<code>\", \"confidence\": <0..1>}. " +
	"Pick the code from the candidate list; use confidence 0 when none fits."

func buildPrompt(req SuggestRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Facility: %d\nInternal code: %s\nDescription: %s\nCandidates:\n",
		req.FacilityID, req.InternalCode, req.Description)
	for _, e := range req.Shortlist {
		fmt.Fprintf(&b, "- %s: %s\n", e.CanonicalCode, e.Description)
	}
	return b.String()
}

// parseSuggestion decodes the model's JSON answer, tolerating markdown fences.
func parseSuggestion(text string) (*Suggestion, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var s Suggestion
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("failed to decode suggestion: %w", err)
	}
	if s.CanonicalCode == "" {
		return nil, fmt.Errorf("suggestion without code")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", s.Confidence)
	}
	return &s, nil
}
