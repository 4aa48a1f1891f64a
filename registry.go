package jcode

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ToolInvoker runs one registered tool given its raw JSON arguments.
type ToolInvoker func(ctx context.Context, args json.RawMessage) (*ToolResult, error)

// ToolDescriptor pairs a tool's wire schema with its invoker.
type ToolDescriptor struct {
	Tool   Tool
	Invoke ToolInvoker
}

// BatchConcurrency is the default cap on concurrent sub-invocations the
// batch tool runs at once, chosen to satisfy the "N (>= 10)" floor in
// §4.3 with headroom.
const BatchConcurrency = 16

// Registry is the C3 name→tool lookup and invoker. It implements
// ToolExecutor directly so it can be handed to the turn loop without an
// adapter.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolDescriptor
}

var _ ToolExecutor = (*Registry)(nil)

// NewRegistry creates an empty Registry and registers the built-in "batch"
// tool, which invokes back into this same registry.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]ToolDescriptor)}
	r.Register(ToolDescriptor{
		Tool: Tool{
			Name:        "batch",
			Description: "Run multiple tool invocations concurrently, preserving input order in the output.",
			Parameters:  batchSchema,
			ReadOnly:    false, // conservative: a batch may contain side-effecting sub-calls
		},
		Invoke: r.executeBatch,
	})
	return r
}

// Register adds or replaces the descriptor for d.Tool.Name.
func (r *Registry) Register(d ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Tool.Name] = d
}

// Lookup returns the descriptor for name, if registered.
func (r *Registry) Lookup(name string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns the wire schema for every registered tool, in no particular
// order; callers that need stable ordering should sort by Name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d.Tool)
	}
	return out
}

// ReadOnly reports whether name is registered and classified read-only.
// Unknown tools report false.
func (r *Registry) ReadOnly(name string) bool {
	d, ok := r.Lookup(name)
	return ok && d.Tool.ReadOnly
}

// Execute implements ToolExecutor by dispatching to the registered
// invoker for name.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrToolNotFound)
	}
	return d.Invoke(ctx, args)
}

var batchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"invocations": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"input": {}
				},
				"required": ["name", "input"]
			}
		}
	},
	"required": ["invocations"]
}`)

type batchInvocation struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type batchArgs struct {
	Invocations []batchInvocation `json:"invocations"`
}

// batchItemResult is one entry of the batch tool's structured output,
// preserving the caller's invocation order.
type batchItemResult struct {
	Name    string `json:"name"`
	Output  string `json:"output,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Error   string `json:"error,omitempty"`
}

// executeBatch runs each sub-invocation concurrently (bounded by
// BatchConcurrency) and returns a JSON array preserving input order, per
// §4.3's "batch" tool.
func (r *Registry) executeBatch(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	var ba batchArgs
	if err := json.Unmarshal(args, &ba); err != nil {
		return &ToolResult{
			Content: []ContentBlock{TextBlock{Text: fmt.Sprintf("batch: invalid input: %v", err)}},
			IsError: true,
		}, nil
	}

	results := make([]batchItemResult, len(ba.Invocations))
	sem := semaphore.NewWeighted(BatchConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, inv := range ba.Invocations {
		i, inv := i, inv
		if err := sem.Acquire(gctx, 1); err != nil {
			results[i] = batchItemResult{Name: inv.Name, IsError: true, Error: err.Error()}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			out, execErr := r.Execute(gctx, inv.Name, inv.Input)
			if execErr != nil {
				results[i] = batchItemResult{Name: inv.Name, IsError: true, Error: execErr.Error()}
				return nil
			}
			results[i] = batchItemResult{Name: inv.Name, Output: collectText(out.Content), IsError: out.IsError}
			return nil
		})
	}
	_ = g.Wait() // sub-invocation errors are captured per-item, never infrastructure failures

	encoded, err := json.Marshal(results)
	if err != nil {
		return &ToolResult{
			Content: []ContentBlock{TextBlock{Text: fmt.Sprintf("batch: failed to encode results: %v", err)}},
			IsError: true,
		}, nil
	}
	return &ToolResult{Content: []ContentBlock{TextBlock{Text: string(encoded)}}}, nil
}

func collectText(blocks []ContentBlock) string {
	var out string
	for _, b := range blocks {
		if tb, ok := b.(TextBlock); ok {
			if out != "" {
				out += "\n"
			}
			out += tb.Text
		}
	}
	return out
}
