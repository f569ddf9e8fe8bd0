package handler

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleHandler_ModulePrefixAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, nil)).
		With("module", "chat", "component", "controller").
		With("user_key", "app1:s1")

	logger.Info("stream started", "conversation_id", "c9")

	out := buf.String()
	assert.Contains(t, out, "[chat/controller] stream started")
	assert.Contains(t, out, "user_key=app1:s1")
	assert.Contains(t, out, "conversation_id=c9")
	assert.NotContains(t, out, "module=chat")
}

func TestConsoleHandler_Group(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, nil)).WithGroup("sse")

	logger.Info("frame skipped", "reason", "malformed")

	assert.Contains(t, buf.String(), "sse.reason=malformed")
}
