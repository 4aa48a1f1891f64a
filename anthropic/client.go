package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jcodehq/jcode"
)

// Interface compliance check.
var _ jcode.Provider = (*Client)(nil)

// Client implements [jcode.Provider] for the Anthropic Messages API.
//
// Setting oauthToken switches the client into the claude_sdk_bridge variant:
// requests authenticate via the subscription-style OAuth token instead of an
// API key, and the upstream requires the system block list's first entry to
// be a fixed identity string or it rejects the request outright.
type Client struct {
	apiKey     string
	oauthToken string
	variant    jcode.ProviderVariant
	baseURL    string
	httpClient *http.Client
	models     []string
}

// oauthIdentityBlock is the fixed leading system block the upstream requires
// when authenticating via a subscription-style OAuth token.
const oauthIdentityBlock = "You are Claude Code, Anthropic's official CLI for Claude."

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithOAuthToken switches the client to the claude_sdk_bridge variant,
// authenticating via a subscription-style OAuth token rather than an API
// key and prepending the fixed identity block to every request's system
// list.
func WithOAuthToken(token string) Option {
	return func(c *Client) {
		c.oauthToken = token
		c.variant = jcode.ProviderClaudeSDKBridge
	}
}

// WithModels overrides the model ids reported by ListModels.
func WithModels(models []string) Option {
	return func(c *Client) { c.models = models }
}

// New creates a new Anthropic [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		variant:    jcode.ProviderClaudeAPI,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		models:     []string{defaultModel, "claude-opus-4-20250514", "claude-haiku-4-20250514"},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name returns the provider variant label: "claude_api" or
// "claude_sdk_bridge" depending on how the client was configured.
func (c *Client) Name() string { return string(c.variant) }

// ListModels returns the model ids this client is configured to offer.
func (c *Client) ListModels() []string { return c.models }

// Stream sends a streaming request to the Anthropic Messages API and returns
// a [jcode.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req jcode.Request) (jcode.Stream, error) {
	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Anthropic-Version", apiVersion)
	if c.oauthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.oauthToken)
		httpReq.Header.Set("Anthropic-Beta", "oauth-2025-04-20")
	} else {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	return newStream(ctx, resp.Body), nil
}

func (c *Client) buildRequestBody(req jcode.Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	sysBlocks := req.System()
	if c.oauthToken != "" {
		if len(sysBlocks) == 0 || sysBlocks[0].Text != oauthIdentityBlock {
			req = req.PrependSystemBlock(jcode.TextBlock{Text: oauthIdentityBlock})
			sysBlocks = req.System()
		}
	}

	apiReq := apiRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Stream:      true,
		System:      convertSystem(sysBlocks),
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		Temperature: req.Temperature,
	}
	injectCacheMarkers(&apiReq)

	return json.Marshal(apiReq)
}

// convertSystem converts the ordered system block list to the API's content
// block shape. Returns nil when there are no blocks.
func convertSystem(blocks []jcode.TextBlock) []apiContentBlock {
	if len(blocks) == 0 {
		return nil
	}
	out := make([]apiContentBlock, len(blocks))
	for i, b := range blocks {
		out[i] = apiContentBlock{Type: "text", Text: b.Text}
	}
	return out
}

// injectCacheMarkers sets cache_control breakpoints on the request:
//  1. Top-level: automatic caching for the conversation message window.
//  2. System prompt last block: stable content breakpoint.
//  3. Last tool: stable tool definitions breakpoint.
func injectCacheMarkers(req *apiRequest) {
	// cc is shared across all breakpoints; safe because it is read-only after assignment.
	cc := &apiCacheControl{Type: "ephemeral"}

	// Top-level cache_control for automatic message-window caching.
	req.CacheControl = cc

	// System prompt last block.
	if len(req.System) > 0 {
		req.System[len(req.System)-1].CacheControl = cc
	}

	// Last tool.
	if len(req.Tools) > 0 {
		req.Tools[len(req.Tools)-1].CacheControl = cc
	}
}

func convertMessages(msgs []jcode.Message) []apiMessage {
	var result []apiMessage
	for _, msg := range msgs {
		switch m := msg.(type) {
		case jcode.UserMessage:
			result = append(result, apiMessage{
				Role:    "user",
				Content: convertContentBlocks(m.Content),
			})
		case jcode.AssistantMessage:
			result = append(result, apiMessage{
				Role:    "assistant",
				Content: convertContentBlocks(m.Content),
			})
		case jcode.ToolResultMessage:
			block := apiContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   convertContentBlocks(m.Content),
				IsError:   m.IsError,
			}
			// Merge consecutive tool results into the same user message.
			if n := len(result); n > 0 && result[n-1].Role == "user" && isToolResultMessage(result[n-1]) {
				result[n-1].Content = append(result[n-1].Content, block)
			} else {
				result = append(result, apiMessage{
					Role:    "user",
					Content: []apiContentBlock{block},
				})
			}
		}
	}
	return result
}

func isToolResultMessage(msg apiMessage) bool {
	return len(msg.Content) > 0 && msg.Content[0].Type == "tool_result"
}

func convertContentBlocks(blocks []jcode.ContentBlock) []apiContentBlock {
	result := make([]apiContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case jcode.TextBlock:
			result = append(result, apiContentBlock{Type: "text", Text: bl.Text})
		case jcode.ThinkingBlock:
			result = append(result, apiContentBlock{Type: "thinking", Thinking: bl.Thinking})
		case jcode.ToolCallBlock:
			result = append(result, apiContentBlock{Type: "tool_use", ID: bl.ID, Name: bl.Name, Input: bl.Arguments})
		case jcode.ImageBlock:
			result = append(result, apiContentBlock{
				Type: "image",
				Source: &apiImageSource{
					Type:      "base64",
					MediaType: bl.MimeType,
					Data:      base64.StdEncoding.EncodeToString(bl.Data),
				},
			})
		}
	}
	return result
}

func convertTools(tools []jcode.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		result[i] = apiTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		}
	}
	return result
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr apiErrorResponse
	var out error
	if err := json.Unmarshal(body, &apiErr); err != nil {
		out = fmt.Errorf("anthropic: HTTP %d: %s", resp.StatusCode, string(body))
	} else {
		out = fmt.Errorf("anthropic: %s: %s", apiErr.Error.Type, apiErr.Error.Message)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return jcode.RetryableError(out)
	}
	return out
}
