package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, Format: "json"})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithSessionID(ctx, "cart_1_abc")

	log.Error(ctx, "cart.save.failed", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-123"`)
	assert.Contains(t, out, `"session_id":"cart_1_abc"`)
	assert.Contains(t, out, `"stack"`)
	assert.Contains(t, out, `"service":"test"`)
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, WarnStack: true, Format: "json"})
	log.Warn(context.Background(), "warny")
	assert.Contains(t, buf.String(), `"stack"`)

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf, Format: "json"})
	quiet.Warn(context.Background(), "warny")
	assert.NotContains(t, buf.String(), `"stack"`)
}

func TestWithFieldsDoesNotLeakAcrossContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: "json"})

	base := context.Background()
	withItem := log.WithItemID(base, "item_1")
	log.Info(withItem, "first")
	log.Info(base, "second")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"item_id":"item_1"`)
	assert.NotContains(t, string(lines[1]), "item_id")
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Info(context.Background(), "ignored")
	log.Error(context.Background(), "ignored", errors.New("x"))
}

func TestWithErrorAttachesMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: "json"})

	ctx := context.Background()
	require.Equal(t, ctx, log.WithError(ctx, nil))

	log.Warn(log.WithError(ctx, errors.New("redis down")), "cart.effect.failed")
	assert.Contains(t, buf.String(), `"error":"redis down"`)
}
