package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jcodehq/jcode"
)

// logEnvelope is the v1 wire format for sessions/<id>/log.json: the
// append-mostly message log (§6 "Persistent state layout").
type logEnvelope struct {
	Version  int          `json:"version"`
	ID       string       `json:"id"`
	Messages []messageDTO `json:"messages"`
}

// metaEnvelope is the v1 wire format for sessions/<id>/meta.json: model,
// friendly name, and token totals (§6).
type metaEnvelope struct {
	Version      int       `json:"version"`
	ID           string    `json:"id"`
	FriendlyName string    `json:"friendly_name"`
	WorkingDir   string    `json:"working_dir"`
	SystemPrompt string    `json:"system_prompt"`
	ProviderName string    `json:"provider_name"`
	Model        string    `json:"model"`
	Usage        usageDTO  `json:"usage"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MarshalLog serializes a Session's message log to JSON in v1 envelope
// format, for sessions/<id>/log.json.
func MarshalLog(s *jcode.Session) ([]byte, error) {
	messages := s.Messages()
	env := logEnvelope{
		Version:  1,
		ID:       s.ID,
		Messages: make([]messageDTO, len(messages)),
	}
	for i, msg := range messages {
		dto, err := marshalMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		env.Messages[i] = dto
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalLog deserializes sessions/<id>/log.json into a message slice.
func UnmarshalLog(data []byte) (id string, messages []jcode.Message, err error) {
	var env logEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal log envelope: %w", err)
	}
	if env.Version != 1 {
		return "", nil, fmt.Errorf("unsupported log envelope version: %d", env.Version)
	}
	msgs := make([]jcode.Message, len(env.Messages))
	for i, dto := range env.Messages {
		msg, err := unmarshalMessage(dto)
		if err != nil {
			return "", nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = msg
	}
	return env.ID, msgs, nil
}

// MarshalMeta serializes a Session's metadata to JSON in v1 envelope
// format, for sessions/<id>/meta.json.
func MarshalMeta(s *jcode.Session) ([]byte, error) {
	u := s.GetUsage()
	env := metaEnvelope{
		Version:      1,
		ID:           s.ID,
		FriendlyName: s.FriendlyName,
		WorkingDir:   s.WorkingDir,
		SystemPrompt: s.SystemPrompt,
		ProviderName: s.ProviderName,
		Model:        s.Model,
		Usage:        usageDTO{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens, CacheReadTokens: u.CacheReadTokens, CacheWriteTokens: u.CacheWriteTokens},
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	return json.MarshalIndent(env, "", "  ")
}

// ApplyMeta unmarshals sessions/<id>/meta.json into an existing Session,
// set up by the caller with NewSession(id, "").
func ApplyMeta(data []byte, s *jcode.Session) error {
	var env metaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal meta envelope: %w", err)
	}
	if env.Version != 1 {
		return fmt.Errorf("unsupported meta envelope version: %d", env.Version)
	}
	s.FriendlyName = env.FriendlyName
	s.WorkingDir = env.WorkingDir
	s.SystemPrompt = env.SystemPrompt
	s.ProviderName = env.ProviderName
	s.Model = env.Model
	s.CreatedAt = env.CreatedAt
	s.UpdatedAt = env.UpdatedAt
	s.SetUsage(jcode.Usage{
		InputTokens:      env.Usage.InputTokens,
		OutputTokens:     env.Usage.OutputTokens,
		CacheReadTokens:  env.Usage.CacheReadTokens,
		CacheWriteTokens: env.Usage.CacheWriteTokens,
	})
	return nil
}

// writeAtomic writes data to path via a temp-file-then-rename, creating
// parent directories as needed. Shared by SaveLog and SaveMeta.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// SaveLog atomically writes s's message log to path (sessions/<id>/log.json).
func SaveLog(path string, s *jcode.Session) error {
	data, err := MarshalLog(s)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	return writeAtomic(path, data)
}

// SaveMeta atomically writes s's metadata to path (sessions/<id>/meta.json).
func SaveMeta(path string, s *jcode.Session) error {
	data, err := MarshalMeta(s)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	return writeAtomic(path, data)
}

// LoadLog reads and decodes sessions/<id>/log.json.
func LoadLog(path string) (id string, messages []jcode.Message, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalLog(data)
}

// LoadMeta reads sessions/<id>/meta.json into s.
func LoadMeta(path string, s *jcode.Session) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return ApplyMeta(data, s)
}
