package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"finassist/internal/logging"
	"finassist/internal/metrics"
)

// ErrStopped is returned by Emitter methods once the consumer has gone away.
var ErrStopped = errors.New("stream stopped")

// GenericFailure is sent for errors that carry no public message.
const GenericFailure = "Unable to complete request"

// PublicError carries a message that may be shown to the consumer.
type PublicError struct {
	Message string
	Cause   error
}

func (e *PublicError) Error() string { return e.Message }

func (e *PublicError) Unwrap() error { return e.Cause }

// Fail wraps cause with a message safe to show the consumer.
func Fail(message string, cause error) error {
	return &PublicError{Message: message, Cause: cause}
}

// Status is how a stream ended.
type Status int

const (
	Completed Status = iota
	Failed
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "disconnected"
}

// Streamer runs producers against sinks.
type Streamer struct {
	delay   time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(delay time.Duration, m *metrics.Metrics, logger *zap.Logger) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{delay: delay, metrics: m, logger: logger}
}

// Producer emits progress through e and returns the terminal result.
type Producer func(ctx context.Context, e *Emitter) (any, error)

// Run is a convenience for New(delay, nil, nil).Run.
func Run(ctx context.Context, sink Sink, delay time.Duration, fn Producer) Status {
	return New(delay, nil, nil).Run(ctx, sink, fn)
}

// Run calls fn and then sends exactly one terminal event, unless the consumer
// disconnects first. After a disconnect nothing more is sent.
func (s *Streamer) Run(ctx context.Context, sink Sink, fn Producer) Status {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e := &Emitter{ctx: ctx, cancel: cancel, sink: sink, delay: s.delay, metrics: s.metrics}
	result, err := fn(ctx, e)

	if e.stopped || ctx.Err() != nil {
		s.metrics.StreamAborted()
		s.logger.Debug("stream consumer disconnected")
		return Disconnected
	}

	if err != nil {
		var pub *PublicError
		msg := GenericFailure
		if errors.As(err, &pub) {
			msg = pub.Message
		} else {
			logging.Error(s.logger, "stream producer failed", err)
		}
		if sendErr := e.send(Failure(msg)); sendErr != nil {
			return Disconnected
		}
		return Failed
	}

	if sendErr := e.send(Done(result)); sendErr != nil {
		return Disconnected
	}
	return Completed
}

// Emitter sends progress tokens for one stream. It is not safe for
// concurrent use.
type Emitter struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sink    Sink
	delay   time.Duration
	metrics *metrics.Metrics
	stopped bool
	sent    int
}

// Emit sends a progress token and then pauses for the configured delay.
func (e *Emitter) Emit(token string) error {
	if err := e.send(Token(token)); err != nil {
		return err
	}
	if e.delay <= 0 {
		return nil
	}
	t := time.NewTimer(e.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-e.ctx.Done():
		e.stopped = true
		return ErrStopped
	}
}

func (e *Emitter) Emitf(format string, args ...any) error {
	return e.Emit(fmt.Sprintf(format, args...))
}

// Sent is the number of events delivered so far.
func (e *Emitter) Sent() int { return e.sent }

func (e *Emitter) send(ev Event) error {
	if e.stopped {
		return ErrStopped
	}
	if e.ctx.Err() != nil {
		e.stopped = true
		return ErrStopped
	}
	if err := e.sink.Send(ev); err != nil {
		e.stopped = true
		e.cancel()
		return ErrStopped
	}
	e.sent++
	e.metrics.StreamEvent(ev.Kind())
	return nil
}
