// Package worker isolates builds in a child process.
//
// Parent and worker exchange newline-delimited JSON messages over the
// worker's stdin and stdout:
//
//	worker -> parent   ready
//	parent -> worker   start   (the resolved build request)
//	worker -> parent   info*   (progress lines)
//	worker -> parent   result | error
//
// Exactly one terminal message (result or error) ends a build. A worker that
// exits without sending one has failed with ErrNoTerminalMessage.
package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

// MessageType tags a protocol message.
type MessageType string

const (
	TypeReady  MessageType = "ready"
	TypeStart  MessageType = "start"
	TypeInfo   MessageType = "info"
	TypeResult MessageType = "result"
	TypeError  MessageType = "error"
)

// Message is one protocol frame. Exactly the payload field matching Type is set.
type Message struct {
	Type    MessageType    `json:"type"`
	Start   *build.Request `json:"start,omitempty"`
	Info    string         `json:"info,omitempty"`
	Result  *build.Output  `json:"result,omitempty"`
	Failure *Failure       `json:"error,omitempty"`
}

// Failure carries a build error across the process boundary.
type Failure struct {
	Category errors.ErrorCategory `json:"category"`
	Message  string               `json:"message"`
	Detail   string               `json:"detail,omitempty"`
}

// ErrNoTerminalMessage is returned when the worker's output ends before a
// result or error message.
var ErrNoTerminalMessage = errors.BuildError("worker exited without a result").Build()

// ErrProtocol is returned for out-of-order or malformed messages.
var ErrProtocol = errors.InternalError("worker protocol violation").Build()

// FailureFrom converts err into a Failure. Classified errors keep their
// category and message; their cause and context become the detail.
func FailureFrom(err error) *Failure {
	if c, ok := errors.AsClassified(err); ok {
		f := &Failure{Category: c.Category(), Message: c.Message()}
		var lines []string
		if c.Cause() != nil {
			lines = append(lines, c.Cause().Error())
		}
		ctx := c.Context()
		for _, k := range slices.Sorted(maps.Keys(ctx)) {
			lines = append(lines, fmt.Sprintf("%s: %v", k, ctx[k]))
		}
		f.Detail = strings.Join(lines, "\n")
		return f
	}
	return &Failure{Category: errors.CategoryBuild, Message: err.Error()}
}

// Err reconstructs a classified error. Sentinels compare equal by category
// and message, so errors.Is still matches across the process boundary.
func (f *Failure) Err() error {
	category := f.Category
	if category == "" {
		category = errors.CategoryBuild
	}
	b := errors.NewError(category, f.Message)
	if f.Detail != "" {
		b = b.WithContext("detail", f.Detail)
	}
	return b.Build()
}

// Encoder writes messages. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Send writes one message followed by a newline.
func (e *Encoder) Send(m Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(m)
}

// Decoder reads messages.
type Decoder struct {
	sc *bufio.Scanner
}

// maxFrame bounds one message; result frames carry the whole bundle.
const maxFrame = 256 << 20

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrame)
	return &Decoder{sc: sc}
}

// Next returns the next message or io.EOF when the stream ends.
func (d *Decoder) Next() (Message, error) {
	for d.sc.Scan() {
		line := d.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return Message{}, ErrProtocol.WithCause(err)
		}
		return m, nil
	}
	if err := d.sc.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}
