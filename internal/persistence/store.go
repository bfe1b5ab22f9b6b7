// Package persistence defines the storage port for call records and
// transcripts. The PostgreSQL implementation lives in the postgres
// subpackage; tests use the mock subpackage.
package persistence

import "context"

// Item is one transcript line of a call.
type Item struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallStore persists call records. Implementations must be safe for
// concurrent use by multiple call sessions.
type CallStore interface {
	// CreateCall opens a call record for the stream and returns its id. An
	// empty id with a nil error means the store declined to create a record.
	CreateCall(ctx context.Context, streamID, clientType string) (string, error)

	// SaveTranscripts appends items to the transcript of callID in order.
	SaveTranscripts(ctx context.Context, callID string, items []Item) error

	// UpdateCallExtraction stores the structured extraction result of a call.
	UpdateCallExtraction(ctx context.Context, callID string, data map[string]any) error

	// EndCall marks the call as completed.
	EndCall(ctx context.Context, callID string) error
}
