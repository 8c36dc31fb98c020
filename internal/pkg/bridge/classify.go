package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

type attemptKind int

const (
	attemptSucceeded attemptKind = iota
	attemptRetryable
	attemptPermanent
)

// attempt is the classified result of one exchange call.
type attempt struct {
	kind       attemptKind
	status     string // ledger status for a successful attempt
	httpStatus int
	externalID string
	body       string
	message    string
}

// failure is the typed error of an unsuccessful attempt.
func (a attempt) failure() *claimerr.Error {
	if a.kind == attemptRetryable {
		return claimerr.New(claimerr.KindTransientSubmission, "%s", a.message)
	}
	return claimerr.New(claimerr.KindPermanentSubmission, "%s", a.message)
}

var acceptedOutcomes = map[string]bool{"complete": true, "partial": true, "queued": true, "accepted": true}
var deniedOutcomes = map[string]bool{"error": true, "denied": true, "rejected": true}

// classify maps an exchange answer onto the retry policy: 2xx is terminal
// per the exchange's own outcome, 429/5xx and transport errors are
// retryable, everything else (including unreadable 2xx bodies) is permanent.
func classify(resp *ExchangeResponse, err error) attempt {
	if err != nil {
		return attempt{kind: attemptRetryable, message: fmt.Sprintf("exchange unreachable: %v", err)}
	}

	a := attempt{httpStatus: resp.StatusCode, body: string(resp.Body)}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		outcome, externalID, perr := parseOutcome(resp.Body)
		if perr != nil {
			a.kind = attemptPermanent
			a.message = fmt.Sprintf("malformed exchange response: %v", perr)
			return a
		}
		switch {
		case acceptedOutcomes[outcome]:
			a.status = models.TransactionStatusSubmittedAccepted
		case deniedOutcomes[outcome]:
			a.status = models.TransactionStatusSubmittedDenied
		default:
			a.kind = attemptPermanent
			a.message = fmt.Sprintf("malformed exchange response: unknown outcome %q", outcome)
			return a
		}
		a.kind = attemptSucceeded
		a.externalID = externalID
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		a.kind = attemptRetryable
		a.message = fmt.Sprintf("exchange returned %d", resp.StatusCode)
	default:
		a.kind = attemptPermanent
		a.message = fmt.Sprintf("exchange rejected submission with %d", resp.StatusCode)
		if snippet := strings.TrimSpace(a.body); snippet != "" {
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			a.message += ": " + snippet
		}
	}
	return a
}

type fhirIdentifier struct {
	Value string `json:"value"`
}

type exchangeDocument struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id"`
	Identifier   json.RawMessage  `json:"identifier"`
	Outcome      string           `json:"outcome"`
	Entry        []exchangeEntry  `json:"entry"`
	Response     *exchangeOutcome `json:"response"`
}

type exchangeEntry struct {
	Resource json.RawMessage `json:"resource"`
}

type exchangeOutcome struct {
	Outcome string `json:"outcome"`
	ID      string `json:"id"`
}

// parseOutcome extracts the outcome and external id from a plain outcome
// object, a ClaimResponse, or a message Bundle carrying a ClaimResponse.
func parseOutcome(body []byte) (string, string, error) {
	var doc exchangeDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", "", err
	}

	if doc.Outcome != "" {
		return strings.ToLower(doc.Outcome), externalID(doc), nil
	}
	if doc.Response != nil && doc.Response.Outcome != "" {
		id := doc.Response.ID
		if id == "" {
			id = externalID(doc)
		}
		return strings.ToLower(doc.Response.Outcome), id, nil
	}
	for _, e := range doc.Entry {
		var res exchangeDocument
		if json.Unmarshal(e.Resource, &res) != nil {
			continue
		}
		if res.ResourceType == "ClaimResponse" && res.Outcome != "" {
			id := externalID(res)
			if id == "" {
				id = externalID(doc)
			}
			return strings.ToLower(res.Outcome), id, nil
		}
	}
	return "", "", fmt.Errorf("no outcome field")
}

func externalID(doc exchangeDocument) string {
	if doc.ID != "" {
		return doc.ID
	}
	if len(doc.Identifier) == 0 {
		return ""
	}
	var list []fhirIdentifier
	if json.Unmarshal(doc.Identifier, &list) == nil && len(list) > 0 {
		return list[0].Value
	}
	var one fhirIdentifier
	if json.Unmarshal(doc.Identifier, &one) == nil {
		return one.Value
	}
	return ""
}
