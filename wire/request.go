// Package wire implements jcode's line-delimited JSON protocol: one
// JSON object per line, each carrying a "type" discriminator. Requests
// flow client→server; events flow server→client.
package wire

import "encoding/json"

// Request is the sealed union of client→server wire messages. The
// unexported marker method keeps the set closed to this package so a
// decoder switch over concrete types stays exhaustive at compile time.
type Request interface {
	requestID() string
	isRequest()
}

// RequestID returns the correlation id every Request carries, used to
// match a response event back to its request (invariant P1).
func RequestID(r Request) string { return r.requestID() }

type SubscribeRequest struct {
	ID         string `json:"id"`
	WorkingDir string `json:"working_dir,omitempty"`
	ClientType string `json:"client_type,omitempty"`
}

func (r SubscribeRequest) requestID() string { return r.ID }
func (SubscribeRequest) isRequest()           {}

type MessageRequest struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

func (r MessageRequest) requestID() string { return r.ID }
func (MessageRequest) isRequest()           {}

type CancelRequest struct {
	ID string `json:"id"`
}

func (r CancelRequest) requestID() string { return r.ID }
func (CancelRequest) isRequest()           {}

type SoftInterruptRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Urgent  bool   `json:"urgent,omitempty"`
}

func (r SoftInterruptRequest) requestID() string { return r.ID }
func (SoftInterruptRequest) isRequest()           {}

type CancelSoftInterruptsRequest struct {
	ID string `json:"id"`
}

func (r CancelSoftInterruptsRequest) requestID() string { return r.ID }
func (CancelSoftInterruptsRequest) isRequest()           {}

type ResumeSessionRequest struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
}

func (r ResumeSessionRequest) requestID() string { return r.ID }
func (ResumeSessionRequest) isRequest()           {}

type SetModelRequest struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

func (r SetModelRequest) requestID() string { return r.ID }
func (SetModelRequest) isRequest()           {}

type CycleModelRequest struct {
	ID        string `json:"id"`
	Direction int    `json:"direction"`
}

func (r CycleModelRequest) requestID() string { return r.ID }
func (CycleModelRequest) isRequest()           {}

type GetHistoryRequest struct {
	ID string `json:"id"`
}

func (r GetHistoryRequest) requestID() string { return r.ID }
func (GetHistoryRequest) isRequest()           {}

type StateRequest struct {
	ID string `json:"id"`
}

func (r StateRequest) requestID() string { return r.ID }
func (StateRequest) isRequest()           {}

type PingRequest struct {
	ID string `json:"id"`
}

func (r PingRequest) requestID() string { return r.ID }
func (PingRequest) isRequest()           {}

type CompactRequest struct {
	ID string `json:"id"`
}

func (r CompactRequest) requestID() string { return r.ID }
func (CompactRequest) isRequest()           {}

type SplitRequest struct {
	ID string `json:"id"`
}

func (r SplitRequest) requestID() string { return r.ID }
func (SplitRequest) isRequest()           {}

type BackgroundToolRequest struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

func (r BackgroundToolRequest) requestID() string { return r.ID }
func (BackgroundToolRequest) isRequest()           {}

type ReloadRequest struct {
	ID string `json:"id"`
}

func (r ReloadRequest) requestID() string { return r.ID }
func (ReloadRequest) isRequest()           {}

// UnknownRequest preserves a request of a type this decoder build does
// not recognize, per the forward-compatibility requirement that
// unknown types be kept opaque rather than dropped.
type UnknownRequest struct {
	Type string
	ID   string          `json:"id"`
	Raw  json.RawMessage `json:"-"`
}

func (r UnknownRequest) requestID() string { return r.ID }
func (UnknownRequest) isRequest()           {}

// Interface compliance checks.
var (
	_ Request = SubscribeRequest{}
	_ Request = MessageRequest{}
	_ Request = CancelRequest{}
	_ Request = SoftInterruptRequest{}
	_ Request = CancelSoftInterruptsRequest{}
	_ Request = ResumeSessionRequest{}
	_ Request = SetModelRequest{}
	_ Request = CycleModelRequest{}
	_ Request = GetHistoryRequest{}
	_ Request = StateRequest{}
	_ Request = PingRequest{}
	_ Request = CompactRequest{}
	_ Request = SplitRequest{}
	_ Request = BackgroundToolRequest{}
	_ Request = ReloadRequest{}
	_ Request = UnknownRequest{}
)

// requestEnvelope is the first-pass decode used to read the
// discriminator before committing to a concrete type.
type requestEnvelope struct {
	Type string `json:"type"`
}

// DecodeRequest parses one line of wire JSON into a concrete Request.
// An unrecognized type decodes into UnknownRequest rather than
// erroring, so a decoder can recover and continue per §4.1.
func DecodeRequest(line []byte) (Request, error) {
	var env requestEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case "subscribe":
		var r SubscribeRequest
		return r, unmarshalInto(line, &r)
	case "message":
		var r MessageRequest
		return r, unmarshalInto(line, &r)
	case "cancel":
		var r CancelRequest
		return r, unmarshalInto(line, &r)
	case "soft_interrupt":
		var r SoftInterruptRequest
		return r, unmarshalInto(line, &r)
	case "cancel_soft_interrupts":
		var r CancelSoftInterruptsRequest
		return r, unmarshalInto(line, &r)
	case "resume_session":
		var r ResumeSessionRequest
		return r, unmarshalInto(line, &r)
	case "set_model":
		var r SetModelRequest
		return r, unmarshalInto(line, &r)
	case "cycle_model":
		var r CycleModelRequest
		return r, unmarshalInto(line, &r)
	case "get_history":
		var r GetHistoryRequest
		return r, unmarshalInto(line, &r)
	case "state":
		var r StateRequest
		return r, unmarshalInto(line, &r)
	case "ping":
		var r PingRequest
		return r, unmarshalInto(line, &r)
	case "compact":
		var r CompactRequest
		return r, unmarshalInto(line, &r)
	case "split":
		var r SplitRequest
		return r, unmarshalInto(line, &r)
	case "background_tool":
		var r BackgroundToolRequest
		return r, unmarshalInto(line, &r)
	case "reload":
		var r ReloadRequest
		return r, unmarshalInto(line, &r)
	default:
		var idOnly struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(line, &idOnly)
		raw := make([]byte, len(line))
		copy(raw, line)
		return UnknownRequest{Type: env.Type, ID: idOnly.ID, Raw: raw}, nil
	}
}

func unmarshalInto(line []byte, v any) error {
	return json.Unmarshal(line, v)
}

// EncodeRequest serializes r as a single wire line (no trailing newline).
func EncodeRequest(r Request) ([]byte, error) {
	typ := requestTypeOf(r)
	return encodeWithType(typ, r)
}

func requestTypeOf(r Request) string {
	switch r.(type) {
	case SubscribeRequest:
		return "subscribe"
	case MessageRequest:
		return "message"
	case CancelRequest:
		return "cancel"
	case SoftInterruptRequest:
		return "soft_interrupt"
	case CancelSoftInterruptsRequest:
		return "cancel_soft_interrupts"
	case ResumeSessionRequest:
		return "resume_session"
	case SetModelRequest:
		return "set_model"
	case CycleModelRequest:
		return "cycle_model"
	case GetHistoryRequest:
		return "get_history"
	case StateRequest:
		return "state"
	case PingRequest:
		return "ping"
	case CompactRequest:
		return "compact"
	case SplitRequest:
		return "split"
	case BackgroundToolRequest:
		return "background_tool"
	case ReloadRequest:
		return "reload"
	case UnknownRequest:
		return r.(UnknownRequest).Type
	default:
		return ""
	}
}
