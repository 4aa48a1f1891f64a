package debug

import (
	"encoding/json"
	"fmt"
)

type swarmPeersArgs struct {
	SessionID string `json:"session_id"`
}

type swarmTouchesArgs struct {
	Path string `json:"path"`
}

type swarmContextGetArgs struct {
	Key string `json:"key"`
}

type swarmContextSetArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *Handler) dispatchSwarm(name string, args json.RawMessage) (any, error) {
	switch name {
	case "peers":
		var a swarmPeersArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		return h.srv.Bus().Peers(a.SessionID), nil
	case "touches":
		var a swarmTouchesArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		return h.srv.Bus().TouchesForPath(a.Path), nil
	case "get_context":
		var a swarmContextGetArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		value, ok := h.srv.Bus().GetContext(a.Key)
		return map[string]any{"value": value, "found": ok}, nil
	case "set_context":
		if err := h.requireMutate(); err != nil {
			return nil, err
		}
		var a swarmContextSetArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		h.srv.Bus().SetContext(a.Key, a.Value)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown swarm command %q", name)
	}
}
