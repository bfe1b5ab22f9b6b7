// Package mock provides an in-memory [persistence.CallStore] for tests.
package mock

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/voxcall/internal/persistence"
)

// CreateCall records one CreateCall invocation.
type CreateCall struct {
	StreamID   string
	ClientType string
}

// SaveCall records one SaveTranscripts invocation.
type SaveCall struct {
	CallID string
	Items  []persistence.Item
}

// ExtractionCall records one UpdateCallExtraction invocation.
type ExtractionCall struct {
	CallID string
	Data   map[string]any
}

// Store is a mock implementation of [persistence.CallStore].
//
// Each method records its arguments and returns the corresponding *Err field.
// CreateCall returns CallID.
type Store struct {
	mu sync.Mutex

	// CallID is returned by CreateCall.
	CallID string

	CreateErr     error
	SaveErr       error
	ExtractionErr error
	EndErr        error

	CreateCalls     []CreateCall
	SaveCalls       []SaveCall
	ExtractionCalls []ExtractionCall
	EndCalls        []string
}

var _ persistence.CallStore = (*Store)(nil)

// CreateCall implements [persistence.CallStore].
func (s *Store) CreateCall(_ context.Context, streamID, clientType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls = append(s.CreateCalls, CreateCall{StreamID: streamID, ClientType: clientType})
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	return s.CallID, nil
}

// SaveTranscripts implements [persistence.CallStore].
func (s *Store) SaveTranscripts(_ context.Context, callID string, items []persistence.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls = append(s.SaveCalls, SaveCall{CallID: callID, Items: slices.Clone(items)})
	return s.SaveErr
}

// UpdateCallExtraction implements [persistence.CallStore].
func (s *Store) UpdateCallExtraction(_ context.Context, callID string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExtractionCalls = append(s.ExtractionCalls, ExtractionCall{CallID: callID, Data: maps.Clone(data)})
	return s.ExtractionErr
}

// EndCall implements [persistence.CallStore].
func (s *Store) EndCall(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndCalls = append(s.EndCalls, callID)
	return s.EndErr
}

// Reset clears all recorded calls. Configured responses are kept.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls = nil
	s.SaveCalls = nil
	s.ExtractionCalls = nil
	s.EndCalls = nil
}

// Creates returns a copy of the recorded CreateCall invocations.
func (s *Store) Creates() []CreateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.CreateCalls)
}

// Ended returns a copy of the call ids passed to EndCall.
func (s *Store) Ended() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.EndCalls)
}
