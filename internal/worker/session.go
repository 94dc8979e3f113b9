package worker

import (
	"context"
	stdErrors "errors"
	"io"

	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

// Builder produces a bundle for a resolved request inside the worker.
type Builder interface {
	Build(ctx context.Context, req build.Request, info func(string)) (*build.Output, error)
}

// Drive runs the parent side of one build session: it waits for ready, sends
// the request, forwards info lines to onInfo and returns the terminal result.
func Drive(r io.Reader, w io.Writer, req build.Request, onInfo func(string)) (*build.Output, error) {
	dec := NewDecoder(r)
	enc := NewEncoder(w)

	first, err := dec.Next()
	if err != nil {
		return nil, terminalErr(err)
	}
	if first.Type != TypeReady {
		return nil, ErrProtocol.WithContext("expected", TypeReady).WithContext("got", first.Type)
	}
	if err := enc.Send(Message{Type: TypeStart, Start: &req}); err != nil {
		return nil, errors.WrapError(err, errors.CategoryBuild, "failed to send build request").Build()
	}

	for {
		m, err := dec.Next()
		if err != nil {
			return nil, terminalErr(err)
		}
		switch m.Type {
		case TypeInfo:
			if onInfo != nil {
				onInfo(m.Info)
			}
		case TypeResult:
			if m.Result == nil {
				return nil, ErrProtocol.WithContext("reason", "empty result")
			}
			return m.Result, nil
		case TypeError:
			if m.Failure == nil {
				return nil, ErrProtocol.WithContext("reason", "empty error")
			}
			return nil, m.Failure.Err()
		default:
			return nil, ErrProtocol.WithContext("got", m.Type)
		}
	}
}

func terminalErr(err error) error {
	if stdErrors.Is(err, io.EOF) {
		return ErrNoTerminalMessage
	}
	if errors.IsClassified(err) {
		return err
	}
	return ErrNoTerminalMessage.WithCause(err)
}

// Serve runs the worker side of one build session. It announces readiness,
// reads a single start message, builds it and reports the outcome. Build
// failures are reported to the parent; the returned error covers only
// protocol and I/O failures.
func Serve(ctx context.Context, r io.Reader, w io.Writer, builder Builder) error {
	dec := NewDecoder(r)
	enc := NewEncoder(w)

	if err := enc.Send(Message{Type: TypeReady}); err != nil {
		return err
	}

	m, err := dec.Next()
	if err != nil {
		if stdErrors.Is(err, io.EOF) {
			return ErrProtocol.WithContext("reason", "input closed before start")
		}
		return err
	}
	if m.Type != TypeStart || m.Start == nil {
		failure := ErrProtocol.WithContext("expected", TypeStart).WithContext("got", m.Type)
		_ = enc.Send(Message{Type: TypeError, Failure: FailureFrom(failure)})
		return failure
	}

	info := func(line string) {
		_ = enc.Send(Message{Type: TypeInfo, Info: line})
	}
	out, err := builder.Build(ctx, *m.Start, info)
	if err != nil {
		return enc.Send(Message{Type: TypeError, Failure: FailureFrom(err)})
	}
	return enc.Send(Message{Type: TypeResult, Result: out})
}
