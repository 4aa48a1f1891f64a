// Package gemini implements [jcode.Provider] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating between pipe's
// domain types and the Gemini API types. Streaming uses the SDK's iter.Seq2
// iterator, wrapped into the pull-based [jcode.Stream] interface.
package gemini

const (
	defaultModel     = "gemini-3.1-pro-preview"
	defaultMaxTokens = 65536
)

// knownModels is the static list returned by Client.ListModels. It is not
// fetched from the API; the Gemini SDK has no cheap "list models" call
// suited to per-request use.
var knownModels = []string{
	"gemini-3.1-pro-preview",
	"gemini-3.1-flash-preview",
	"gemini-2.5-pro",
	"gemini-2.5-flash",
}
