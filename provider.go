package jcode

import "context"

// Provider is a strategy pattern interface for LLM providers.
//
// Stream accepts Request by value so that implementations cannot mutate the
// caller's data (e.g., by appending to Messages or Tools). Note that value
// passing copies slice headers but shares the underlying arrays; providers
// must not modify existing elements of the slices.
//
// Name identifies the provider variant for logging, the wire protocol's
// upstream_provider event, and model-cycling. ListModels returns the set of
// model ids this provider instance currently knows how to serve; it is
// informational (used by set_model/cycle_model validation) and may be a
// static list or backed by a cached upstream call.
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
	Name() string
	ListModels() []string
}

// ProviderVariant enumerates the provider families this module wires up.
// Each variant has its own concrete implementation but presents the same
// Provider interface to the turn loop.
type ProviderVariant string

const (
	ProviderClaudeAPI       ProviderVariant = "claude_api"
	ProviderClaudeSDKBridge ProviderVariant = "claude_sdk_bridge"
	ProviderOpenAIResponses ProviderVariant = "openai_responses"
	ProviderOpenRouter      ProviderVariant = "openrouter"
)
