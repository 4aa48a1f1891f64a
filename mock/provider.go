// Package mock provides test doubles for pipe interfaces using function fields.
package mock

import (
	"context"

	"github.com/jcodehq/jcode"
)

// Interface compliance checks.
var (
	_ jcode.Provider = (*Provider)(nil)
	_ jcode.Stream   = (*Stream)(nil)
)

// Provider is a test double for jcode.Provider.
// Set StreamFn before calling Stream. NameFn/ListModelsFn default to
// returning "mock" and nil respectively when unset.
type Provider struct {
	StreamFn     func(ctx context.Context, req jcode.Request) (jcode.Stream, error)
	NameFn       func() string
	ListModelsFn func() []string
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req jcode.Request) (jcode.Stream, error) {
	return p.StreamFn(ctx, req)
}

// Name delegates to NameFn, defaulting to "mock".
func (p *Provider) Name() string {
	if p.NameFn != nil {
		return p.NameFn()
	}
	return "mock"
}

// ListModels delegates to ListModelsFn, defaulting to nil.
func (p *Provider) ListModels() []string {
	if p.ListModelsFn != nil {
		return p.ListModelsFn()
	}
	return nil
}

// Stream is a test double for jcode.Stream.
// Set the function fields for the methods you need.
type Stream struct {
	NextFn    func() (jcode.Event, error)
	StateFn   func() jcode.StreamState
	MessageFn func() (jcode.AssistantMessage, error)
	CloseFn   func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (jcode.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn.
func (s *Stream) State() jcode.StreamState {
	return s.StateFn()
}

// Message delegates to MessageFn.
func (s *Stream) Message() (jcode.AssistantMessage, error) {
	return s.MessageFn()
}

// Close delegates to CloseFn.
func (s *Stream) Close() error {
	return s.CloseFn()
}
