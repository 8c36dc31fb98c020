package fhir

import (
	"time"
)

// EventClaimRequest is the message event of a claim submission.
const EventClaimRequest = "claim-request"

type Reference struct {
	Reference string `json:"reference"`
}

type MessageSource struct {
	Endpoint string `json:"endpoint"`
}

type MessageHeader struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id"`
	EventCoding  Coding        `json:"eventCoding"`
	Source       MessageSource `json:"source"`
	Focus        []Reference   `json:"focus"`
}

type BundleEntry struct {
	FullURL  string `json:"fullUrl"`
	Resource any    `json:"resource"`
}

// Bundle is a FHIR message bundle: a MessageHeader followed by its focus.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Timestamp    string        `json:"timestamp"`
	Entry        []BundleEntry `json:"entry"`
}

// NewClaimMessage wraps claim in a claim-request message bundle whose id is
// the transaction uuid. The claim id defaults to the same uuid.
func NewClaimMessage(transactionUUID, sourceEndpoint string, claim *Claim, at time.Time) *Bundle {
	if claim.ID == "" {
		claim.ID = transactionUUID
	}
	claimURL := "urn:uuid:" + claim.ID
	return &Bundle{
		ResourceType: "Bundle",
		ID:           transactionUUID,
		Type:         "message",
		Timestamp:    at.UTC().Format(time.RFC3339),
		Entry: []BundleEntry{
			{
				FullURL: "urn:uuid:" + transactionUUID,
				Resource: MessageHeader{
					ResourceType: "MessageHeader",
					ID:           transactionUUID,
					EventCoding:  Coding{System: "http://nphies.sa/terminology/CodeSystem/ksa-message-events", Code: EventClaimRequest},
					Source:       MessageSource{Endpoint: sourceEndpoint},
					Focus:        []Reference{{Reference: claimURL}},
				},
			},
			{FullURL: claimURL, Resource: claim},
		},
	}
}
