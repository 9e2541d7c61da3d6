package models

// These structs define the payloads exchanged with the queue trigger and the
// downstream indexing workflow.

// ProcessingStatus is the terminal state of one processing run.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "SUCCESS"
	StatusWarning ProcessingStatus = "WARNING"
	StatusFailure ProcessingStatus = "FAILURE"
)

// ProcessingResult is created once per run and returned to the caller.
// DocumentLocation is empty for failures.
type ProcessingResult struct {
	Status           ProcessingStatus `json:"status"`
	Message          string           `json:"message,omitempty"`
	DocumentLocation string           `json:"documentLocation,omitempty"`
}

// PubSubMessage is the message part of a Pub/Sub CloudEvent.
type PubSubMessage struct {
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
	MessageID  string            `json:"messageId"`
}

// MessagePublishedData is the CloudEvent data of a Pub/Sub push.
type MessagePublishedData struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

// ProcessDocumentRequest is the JSON body of a queue message. A single
// document uses BlobURI; a batch uses BlobURIs.
type ProcessDocumentRequest struct {
	BlobURI  string   `json:"blobUri,omitempty"`
	BlobURIs []string `json:"blobUris,omitempty"`
}

// URIs returns every blob reference in the request.
func (r ProcessDocumentRequest) URIs() []string {
	var uris []string
	if r.BlobURI != "" {
		uris = append(uris, r.BlobURI)
	}
	return append(uris, r.BlobURIs...)
}

// IndexingRequest is the argument passed to the indexing workflow once an
// artifact has been published.
type IndexingRequest struct {
	EntityID         string `json:"entityId"`
	DocumentLocation string `json:"documentLocation"`
	Status           string `json:"status"`
}
