package jcode

import "fmt"

// Request carries model selection and generation parameters.
// The provider uses its own defaults when fields are zero/nil.
//
// System prompts are represented as an ordered list of text blocks rather
// than a single string so that a provider requiring a fixed leading
// identity block (see the claude_api/claude_sdk_bridge OAuth constraint)
// can be given one without the caller assuming single-string system
// semantics. SystemPrompt remains as a convenience for the common case of a
// single block; when SystemBlocks is non-empty it takes precedence.
type Request struct {
	Model        string // model ID, provider-specific; empty = provider default
	SystemPrompt string
	SystemBlocks []TextBlock
	Messages     []Message
	Tools        []Tool
	MaxTokens    int      // 0 = provider default
	Temperature  *float64 // nil = provider default
}

// System returns the effective ordered system block list, preferring
// SystemBlocks over SystemPrompt when both are set.
func (r Request) System() []TextBlock {
	if len(r.SystemBlocks) > 0 {
		return r.SystemBlocks
	}
	if r.SystemPrompt == "" {
		return nil
	}
	return []TextBlock{{Text: r.SystemPrompt}}
}

// PrependSystemBlock returns a copy of r with block inserted at the front of
// the effective system block list. Used by providers that require a fixed
// leading identity block (e.g. OAuth subscription auth) without assuming
// the caller's system prompt is a single string.
func (r Request) PrependSystemBlock(block TextBlock) Request {
	out := r
	out.SystemBlocks = append([]TextBlock{block}, r.System()...)
	return out
}

// Validate checks universal constraints on Request.
// Provider implementations may apply additional provider-specific validation.
func (r Request) Validate() error {
	if r.Temperature != nil {
		if *r.Temperature < 0 || *r.Temperature > 2 {
			return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, ErrValidation)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	return nil
}
