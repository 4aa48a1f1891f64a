package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxLineBytes bounds a single wire message; generous enough for a
// history snapshot of a long session while still catching a runaway
// peer instead of growing memory unbounded.
const maxLineBytes = 16 * 1024 * 1024

// encodeWithType marshals v, then splices in a "type" field so the
// wire's discriminator survives even though the Go struct doesn't
// carry its own type tag. UnknownRequest/UnknownEvent carry pre-framed
// raw bytes and short-circuit this path.
func encodeWithType(typ string, v any) ([]byte, error) {
	if raw, ok := rawBytesOf(v); ok {
		return raw, nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(typ)
	if err != nil {
		return nil, err
	}
	fields["type"] = typeJSON
	return json.Marshal(fields)
}

func rawBytesOf(v any) ([]byte, bool) {
	switch r := v.(type) {
	case UnknownRequest:
		return r.Raw, len(r.Raw) > 0
	case UnknownEvent:
		return r.Raw, len(r.Raw) > 0
	default:
		return nil, false
	}
}

// Decoder reads one Request per line from a client connection.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{scanner: s}
}

// Decode reads the next line and parses it into a Request. Returns
// io.EOF when the underlying reader is exhausted.
func (d *Decoder) Decode() (Request, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	line := d.scanner.Bytes()
	if len(line) == 0 {
		return nil, fmt.Errorf("wire: empty line")
	}
	return DecodeRequest(line)
}

// Encoder writes one ServerEvent per line to a client connection. It
// serializes encode calls so concurrent goroutines emitting events for
// the same connection never interleave partial writes (§4.1: "An
// encoder MUST emit monotonically with no interleaved partial
// messages").
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(evt ServerEvent) error {
	line, err := EncodeEvent(evt)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(line)
	return err
}
