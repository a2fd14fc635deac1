package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twei55/otcbot/internal/config"
	"github.com/twei55/otcbot/internal/notify"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildNotifiers_FullyConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Notify.LarkWebhookURL = "https://open.larksuite.com/open-apis/bot/v2/hook/abc"
	cfg.Notify.TwilioCredsFile = writeFile(t, dir, "twilio.csv", "AC123\nauthtoken\n+15550000000\n")
	cfg.Notify.CallListFile = writeFile(t, dir, "calls.csv", "+15551111111\n+15552222222\n")

	notifiers := buildNotifiers(cfg, testLogger())
	require.Len(t, notifiers, 2)

	lark, ok := notifiers[0].(*notify.LarkNotifier)
	require.True(t, ok)
	assert.Equal(t, "lark", lark.Name())
	assert.True(t, lark.Configured())

	call, ok := notifiers[1].(*notify.CallNotifier)
	require.True(t, ok)
	assert.Equal(t, "twilio-call", call.Name())
	assert.True(t, call.Configured())
}

func TestBuildNotifiers_Unconfigured(t *testing.T) {
	cfg := &config.Config{}

	notifiers := buildNotifiers(cfg, testLogger())
	require.Len(t, notifiers, 2)

	lark, ok := notifiers[0].(*notify.LarkNotifier)
	require.True(t, ok)
	assert.False(t, lark.Configured())

	call, ok := notifiers[1].(*notify.CallNotifier)
	require.True(t, ok)
	assert.False(t, call.Configured())
}

func TestBuildNotifiers_BadTwilioFileDisablesCalls(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Notify.TwilioCredsFile = writeFile(t, dir, "twilio.csv", "AC123\n")
	cfg.Notify.CallListFile = filepath.Join(dir, "absent.csv")

	notifiers := buildNotifiers(cfg, testLogger())
	require.Len(t, notifiers, 2)

	call, ok := notifiers[1].(*notify.CallNotifier)
	require.True(t, ok)
	assert.False(t, call.Configured())
}
