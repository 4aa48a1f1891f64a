package debug

import (
	"encoding/json"
	"fmt"
)

func (h *Handler) dispatchClient(name string, args json.RawMessage) (any, error) {
	switch name {
	case "list":
		return h.srv.Connections(), nil
	default:
		return nil, fmt.Errorf("unknown client command %q", name)
	}
}
