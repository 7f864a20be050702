package natsutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := Connect(srv.ClientURL(), "natsutil-test", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

type payload struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	assert.Empty(t, carrier.Get("missing"))
	assert.Nil(t, carrier.Keys())

	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Len(t, carrier.Keys(), 1)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "x", nil)
	require.ErrorContains(t, err, "natsutil: connect")
}

func TestPublish(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("test.pub", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, Publish(context.Background(), nc, "test.pub", payload{Name: "hello", Value: 1}))

	select {
	case msg := <-ch:
		var p payload
		require.NoError(t, json.Unmarshal(msg.Data, &p))
		assert.Equal(t, payload{Name: "hello", Value: 1}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishPropagatesTrace(t *testing.T) {
	_, nc := startTestNATS(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	got := make(chan trace.TraceID, 1)
	sub, err := Subscribe(nc, "test.trace", func(ctx context.Context, _ payload) {
		got <- trace.SpanContextFromContext(ctx).TraceID()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	pub := NewPublisher[payload](nc, "test.trace")
	assert.Equal(t, "test.trace", pub.Subject())
	require.NoError(t, pub.Publish(ctx, payload{Name: "t"}))

	select {
	case id := <-got:
		assert.Equal(t, traceID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan payload, 2)
	sub, err := Subscribe(nc, "test.sub", func(_ context.Context, p payload) { ch <- p })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	require.NoError(t, nc.Publish("test.sub", []byte("{invalid json")))
	require.NoError(t, Publish(context.Background(), nc, "test.sub", payload{Name: "ok", Value: 2}))

	select {
	case p := <-ch:
		assert.Equal(t, "ok", p.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}
