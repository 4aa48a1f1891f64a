package wire

import "encoding/json"

// ServerEvent is the sealed union of server→client wire messages.
type ServerEvent interface {
	isServerEvent()
}

type AckEvent struct {
	ID string `json:"id"`
}

func (AckEvent) isServerEvent() {}

type ErrorEvent struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func (ErrorEvent) isServerEvent() {}

type PongEvent struct {
	ID string `json:"id"`
}

func (PongEvent) isServerEvent() {}

type DoneEvent struct {
	ID string `json:"id"`
}

func (DoneEvent) isServerEvent() {}

type SessionEvent struct {
	SessionID string `json:"session_id"`
}

func (SessionEvent) isServerEvent() {}

// HistoryEntry mirrors jcode.HistoryEntry's wire shape: one flattened
// row per logged message (role + text + tool summary).
type HistoryEntry struct {
	Role        string `json:"role"`
	Text        string `json:"text,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	ToolCallID  string `json:"tool_call_id,omitempty"`
	IsToolError bool   `json:"is_tool_error,omitempty"`
}

type HistoryEvent struct {
	Entries []HistoryEntry `json:"entries"`
}

func (HistoryEvent) isServerEvent() {}

type TextDeltaEvent struct {
	Text string `json:"text"`
}

func (TextDeltaEvent) isServerEvent() {}

// TextReplaceEvent replaces the most recent assistant text segment not
// yet committed (§9 open question, resolved this way).
type TextReplaceEvent struct {
	Text string `json:"text"`
}

func (TextReplaceEvent) isServerEvent() {}

type ToolStartEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (ToolStartEvent) isServerEvent() {}

type ToolInputEvent struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

func (ToolInputEvent) isServerEvent() {}

type ToolExecEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (ToolExecEvent) isServerEvent() {}

type ToolDoneEvent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

func (ToolDoneEvent) isServerEvent() {}

type TokensEvent struct {
	Input         int `json:"input"`
	Output        int `json:"output"`
	CacheRead     int `json:"cache_read,omitempty"`
	CacheCreation int `json:"cache_creation,omitempty"`
}

func (TokensEvent) isServerEvent() {}

type UpstreamProviderEvent struct {
	Provider string `json:"provider"`
}

func (UpstreamProviderEvent) isServerEvent() {}

type ModelChangedEvent struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	ProviderName string `json:"provider_name,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (ModelChangedEvent) isServerEvent() {}

type InterruptedEvent struct{}

func (InterruptedEvent) isServerEvent() {}

type ReloadingEvent struct {
	NewSocket string `json:"new_socket,omitempty"`
}

func (ReloadingEvent) isServerEvent() {}

type ReloadProgressEvent struct {
	Step    string `json:"step"`
	Message string `json:"message,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Output  string `json:"output,omitempty"`
}

func (ReloadProgressEvent) isServerEvent() {}

type NotificationEvent struct {
	From      string `json:"from,omitempty"`
	Kind      string `json:"kind"`
	Path      string `json:"path,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (NotificationEvent) isServerEvent() {}

type SwarmMember struct {
	SessionID  string `json:"session_id"`
	WorkingDir string `json:"working_dir"`
}

type SwarmStatusEvent struct {
	Members []SwarmMember `json:"members"`
}

func (SwarmStatusEvent) isServerEvent() {}

type MCPServerStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

type MCPStatusEvent struct {
	Servers []MCPServerStatus `json:"servers"`
}

func (MCPStatusEvent) isServerEvent() {}

type SoftInterruptInjectedEvent struct {
	Content      string `json:"content"`
	Point        string `json:"point"`
	ToolsSkipped int    `json:"tools_skipped,omitempty"`
}

func (SoftInterruptInjectedEvent) isServerEvent() {}

type MemoryInjectedEvent struct {
	Count int `json:"count"`
}

func (MemoryInjectedEvent) isServerEvent() {}

type CompactResultEvent struct {
	Summary string `json:"summary"`
}

func (CompactResultEvent) isServerEvent() {}

type SplitResponseEvent struct {
	NewSessionID string `json:"new_session_id"`
}

func (SplitResponseEvent) isServerEvent() {}

// UnknownEvent preserves an event of a type this decoder build does
// not recognize.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage `json:"-"`
}

func (UnknownEvent) isServerEvent() {}

// Interface compliance checks.
var (
	_ ServerEvent = AckEvent{}
	_ ServerEvent = ErrorEvent{}
	_ ServerEvent = PongEvent{}
	_ ServerEvent = DoneEvent{}
	_ ServerEvent = SessionEvent{}
	_ ServerEvent = HistoryEvent{}
	_ ServerEvent = TextDeltaEvent{}
	_ ServerEvent = TextReplaceEvent{}
	_ ServerEvent = ToolStartEvent{}
	_ ServerEvent = ToolInputEvent{}
	_ ServerEvent = ToolExecEvent{}
	_ ServerEvent = ToolDoneEvent{}
	_ ServerEvent = TokensEvent{}
	_ ServerEvent = UpstreamProviderEvent{}
	_ ServerEvent = ModelChangedEvent{}
	_ ServerEvent = InterruptedEvent{}
	_ ServerEvent = ReloadingEvent{}
	_ ServerEvent = ReloadProgressEvent{}
	_ ServerEvent = NotificationEvent{}
	_ ServerEvent = SwarmStatusEvent{}
	_ ServerEvent = MCPStatusEvent{}
	_ ServerEvent = SoftInterruptInjectedEvent{}
	_ ServerEvent = MemoryInjectedEvent{}
	_ ServerEvent = CompactResultEvent{}
	_ ServerEvent = SplitResponseEvent{}
	_ ServerEvent = UnknownEvent{}
)

type eventEnvelope struct {
	Type string `json:"type"`
}

// DecodeEvent parses one wire line into a concrete ServerEvent. Used
// by clients (and tests) that read the server's side of the protocol.
func DecodeEvent(line []byte) (ServerEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case "ack":
		var e AckEvent
		return e, json.Unmarshal(line, &e)
	case "error":
		var e ErrorEvent
		return e, json.Unmarshal(line, &e)
	case "pong":
		var e PongEvent
		return e, json.Unmarshal(line, &e)
	case "done":
		var e DoneEvent
		return e, json.Unmarshal(line, &e)
	case "session":
		var e SessionEvent
		return e, json.Unmarshal(line, &e)
	case "history":
		var e HistoryEvent
		return e, json.Unmarshal(line, &e)
	case "text_delta":
		var e TextDeltaEvent
		return e, json.Unmarshal(line, &e)
	case "text_replace":
		var e TextReplaceEvent
		return e, json.Unmarshal(line, &e)
	case "tool_start":
		var e ToolStartEvent
		return e, json.Unmarshal(line, &e)
	case "tool_input":
		var e ToolInputEvent
		return e, json.Unmarshal(line, &e)
	case "tool_exec":
		var e ToolExecEvent
		return e, json.Unmarshal(line, &e)
	case "tool_done":
		var e ToolDoneEvent
		return e, json.Unmarshal(line, &e)
	case "tokens":
		var e TokensEvent
		return e, json.Unmarshal(line, &e)
	case "upstream_provider":
		var e UpstreamProviderEvent
		return e, json.Unmarshal(line, &e)
	case "model_changed":
		var e ModelChangedEvent
		return e, json.Unmarshal(line, &e)
	case "interrupted":
		var e InterruptedEvent
		return e, json.Unmarshal(line, &e)
	case "reloading":
		var e ReloadingEvent
		return e, json.Unmarshal(line, &e)
	case "reload_progress":
		var e ReloadProgressEvent
		return e, json.Unmarshal(line, &e)
	case "notification":
		var e NotificationEvent
		return e, json.Unmarshal(line, &e)
	case "swarm_status":
		var e SwarmStatusEvent
		return e, json.Unmarshal(line, &e)
	case "mcp_status":
		var e MCPStatusEvent
		return e, json.Unmarshal(line, &e)
	case "soft_interrupt_injected":
		var e SoftInterruptInjectedEvent
		return e, json.Unmarshal(line, &e)
	case "memory_injected":
		var e MemoryInjectedEvent
		return e, json.Unmarshal(line, &e)
	case "compact_result":
		var e CompactResultEvent
		return e, json.Unmarshal(line, &e)
	case "split_response":
		var e SplitResponseEvent
		return e, json.Unmarshal(line, &e)
	default:
		raw := make([]byte, len(line))
		copy(raw, line)
		return UnknownEvent{Type: env.Type, Raw: raw}, nil
	}
}

// EncodeEvent serializes evt as a single wire line (no trailing newline).
func EncodeEvent(evt ServerEvent) ([]byte, error) {
	return encodeWithType(eventTypeOf(evt), evt)
}

func eventTypeOf(evt ServerEvent) string {
	switch e := evt.(type) {
	case AckEvent:
		return "ack"
	case ErrorEvent:
		return "error"
	case PongEvent:
		return "pong"
	case DoneEvent:
		return "done"
	case SessionEvent:
		return "session"
	case HistoryEvent:
		return "history"
	case TextDeltaEvent:
		return "text_delta"
	case TextReplaceEvent:
		return "text_replace"
	case ToolStartEvent:
		return "tool_start"
	case ToolInputEvent:
		return "tool_input"
	case ToolExecEvent:
		return "tool_exec"
	case ToolDoneEvent:
		return "tool_done"
	case TokensEvent:
		return "tokens"
	case UpstreamProviderEvent:
		return "upstream_provider"
	case ModelChangedEvent:
		return "model_changed"
	case InterruptedEvent:
		return "interrupted"
	case ReloadingEvent:
		return "reloading"
	case ReloadProgressEvent:
		return "reload_progress"
	case NotificationEvent:
		return "notification"
	case SwarmStatusEvent:
		return "swarm_status"
	case MCPStatusEvent:
		return "mcp_status"
	case SoftInterruptInjectedEvent:
		return "soft_interrupt_injected"
	case MemoryInjectedEvent:
		return "memory_injected"
	case CompactResultEvent:
		return "compact_result"
	case SplitResponseEvent:
		return "split_response"
	case UnknownEvent:
		return e.Type
	default:
		return ""
	}
}
