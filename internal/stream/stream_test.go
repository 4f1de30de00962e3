package stream_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"finassist/internal/metrics"
	"finassist/internal/stream"
)

func TestEvent_MarshalShapes(t *testing.T) {
	cases := []struct {
		name string
		ev   stream.Event
		want string
	}{
		{"token", stream.Token("📖 Reading message...\n"), `{"token":"📖 Reading message...\n"}`},
		{"done", stream.Done([]int{}), `{"done":true,"result":[]}`},
		{"error", stream.Failure("Case not found"), `{"error":"Case not found"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}
}

func TestEvent_Unmarshal(t *testing.T) {
	var ev stream.Event
	require.NoError(t, json.Unmarshal([]byte(`{"error":"x"}`), &ev))
	assert.Equal(t, "error", ev.Kind())
	assert.True(t, ev.Terminal())

	require.NoError(t, json.Unmarshal([]byte(`{"token":"a"}`), &ev))
	assert.Equal(t, "a", ev.Token)
	assert.False(t, ev.Terminal())

	require.NoError(t, json.Unmarshal([]byte(`{"done":true,"result":{"k":1}}`), &ev))
	assert.Equal(t, "done", ev.Kind())
}

func TestRun_TokensThenSingleDone(t *testing.T) {
	rec := &stream.Recorder{}
	status := stream.Run(context.Background(), rec, 0, func(ctx context.Context, e *stream.Emitter) (any, error) {
		require.NoError(t, e.Emit("one\n"))
		require.NoError(t, e.Emitf("found %d\n", 3))
		return map[string]int{"n": 3}, nil
	})

	assert.Equal(t, stream.Completed, status)
	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "one\n", events[0].Token)
	assert.Equal(t, "found 3\n", events[1].Token)
	assert.Equal(t, "done", events[2].Kind())
	assert.Equal(t, map[string]int{"n": 3}, events[2].Result)
}

func TestRun_PublicAndGenericFailures(t *testing.T) {
	rec := &stream.Recorder{}
	status := stream.Run(context.Background(), rec, 0, func(ctx context.Context, e *stream.Emitter) (any, error) {
		return nil, stream.Fail("Case not found", errors.New("missing"))
	})
	assert.Equal(t, stream.Failed, status)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "Case not found", rec.Events()[0].Err)

	rec = &stream.Recorder{}
	stream.New(0, nil, zaptest.NewLogger(t)).Run(context.Background(), rec, func(ctx context.Context, e *stream.Emitter) (any, error) {
		_ = e.Emit("step\n")
		return nil, errors.New("dial tcp 10.0.0.1: refused")
	})
	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, stream.GenericFailure, events[1].Err)
}

type failingSink struct {
	after int
	sent  []stream.Event
}

func (s *failingSink) Send(e stream.Event) error {
	if len(s.sent) >= s.after {
		return errors.New("broken pipe")
	}
	s.sent = append(s.sent, e)
	return nil
}

func TestRun_StopsAfterDisconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sink := &failingSink{after: 2}
	var emitErrs int

	status := stream.New(0, m, zaptest.NewLogger(t)).Run(context.Background(), sink, func(ctx context.Context, e *stream.Emitter) (any, error) {
		for _, tok := range []string{"a", "b", "c", "d"} {
			if err := e.Emit(tok); err != nil {
				emitErrs++
				assert.ErrorIs(t, err, stream.ErrStopped)
			}
		}
		assert.Error(t, ctx.Err())
		return "ignored", nil
	})

	assert.Equal(t, stream.Disconnected, status)
	require.Len(t, sink.sent, 2)
	assert.Equal(t, 2, emitErrs)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StreamsAborted))
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &cancelOnSend{cancel: cancel}

	status := stream.Run(ctx, sink, time.Hour, func(ctx context.Context, e *stream.Emitter) (any, error) {
		err := e.Emit("first")
		assert.ErrorIs(t, err, stream.ErrStopped)
		return nil, nil
	})

	assert.Equal(t, stream.Disconnected, status)
	assert.Equal(t, 1, sink.sent)
}

type cancelOnSend struct {
	cancel context.CancelFunc
	sent   int
}

func (s *cancelOnSend) Send(stream.Event) error {
	s.sent++
	s.cancel()
	return nil
}

func TestSSE_Framing(t *testing.T) {
	w := httptest.NewRecorder()
	sink, err := stream.NewSSE(w)
	require.NoError(t, err)

	require.NoError(t, sink.Send(stream.Token("x\n")))
	require.NoError(t, sink.Send(stream.Done([]string{})))

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, "data: {\"token\":\"x\\n\"}\n\ndata: {\"done\":true,\"result\":[]}\n\n", w.Body.String())
}

func TestNDJSON_OneObjectPerLine(t *testing.T) {
	var sb strings.Builder
	sink := stream.NewNDJSON(&sb)
	require.NoError(t, sink.Send(stream.Token("a")))
	require.NoError(t, sink.Send(stream.Failure("b")))

	sc := bufio.NewScanner(strings.NewReader(sb.String()))
	var lines int
	for sc.Scan() {
		var ev stream.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestChannel_DeliversUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := stream.NewChannel(ctx, 1)

	require.NoError(t, ch.Send(stream.Token("a")))
	assert.Equal(t, "a", (<-ch.Events()).Token)

	cancel()
	assert.Error(t, ch.Send(stream.Token("b")))
	ch.Close()
	_, ok := <-ch.Events()
	assert.False(t, ok)
}
