package debug

import (
	"encoding/json"
	"fmt"
)

// serverStatusResult is the server:status response shape.
type serverStatusResult struct {
	PID             int            `json:"pid"`
	SocketPath      string         `json:"socket_path"`
	StartedAt       string         `json:"started_at"`
	ConnectionCount int            `json:"connection_count"`
	Subscribers     map[string]int `json:"subscribers"`
}

type sessionSummary struct {
	ID           string `json:"id"`
	FriendlyName string `json:"friendly_name"`
	WorkingDir   string `json:"working_dir"`
	Model        string `json:"model"`
	ProviderName string `json:"provider_name"`
}

func (h *Handler) dispatchServer(name string, args json.RawMessage) (any, error) {
	switch name {
	case "status":
		snap := h.srv.Snapshot()
		return serverStatusResult{
			PID:             snap.PID,
			SocketPath:      snap.SocketPath,
			StartedAt:       snap.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			ConnectionCount: snap.ConnectionCount,
			Subscribers:     snap.SubscribedCounts,
		}, nil
	case "sessions":
		sessions := h.srv.Manager().List()
		out := make([]sessionSummary, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionSummary{
				ID:           s.ID,
				FriendlyName: s.FriendlyName,
				WorkingDir:   s.WorkingDir,
				Model:        s.Model,
				ProviderName: s.ProviderName,
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown server command %q", name)
	}
}
