// Package events publishes build lifecycle events.
package events

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/packd/internal/logfields"
)

// Kind identifies a lifecycle step. It is also the last subject token when
// events are published to NATS.
type Kind string

const (
	KindStarted  Kind = "started"
	KindProgress Kind = "progress"
	KindFinished Kind = "finished"
)

// Event describes one step of a build attempt.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Hash       string    `json:"hash"`
	Name       string    `json:"name"`
	Info       string    `json:"info,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Size       int       `json:"size,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Emitter receives build events. Emit must not block for long; builds call
// it inline for every progress line.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// LogEmitter writes events to a slog logger.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(ctx context.Context, e Event) error {
	attrs := []slog.Attr{logfields.BuildID(e.ID), logfields.BuildHash(e.Hash), logfields.Bundle(e.Name)}
	switch e.Kind {
	case KindStarted:
		l.logger.LogAttrs(ctx, slog.LevelInfo, "Build started", attrs...)
	case KindProgress:
		l.logger.LogAttrs(ctx, slog.LevelInfo, e.Info, attrs...)
	case KindFinished:
		attrs = append(attrs,
			logfields.Outcome(e.Outcome),
			logfields.DurationMS(float64(e.DurationMS)),
			logfields.Size(e.Size))
		if e.Error != "" {
			attrs = append(attrs, slog.String("error", e.Error))
			l.logger.LogAttrs(ctx, slog.LevelWarn, "Build finished", attrs...)
			return nil
		}
		l.logger.LogAttrs(ctx, slog.LevelInfo, "Build finished", attrs...)
	}
	return nil
}

// Multi fans an event out to several emitters. Every emitter is called even
// if an earlier one fails.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, em := range m {
		if err := em.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) error { return nil }
