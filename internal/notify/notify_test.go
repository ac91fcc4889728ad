package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFeed_DrainKeepsNewest(t *testing.T) {
	f := NewFeed(2)
	f.Notify(LevelInfo, "one")
	f.Notify(LevelError, "two")
	f.Notify(LevelSuccess, "three")

	got := f.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Message)
	assert.Equal(t, LevelSuccess, got[1].Level)
	assert.Empty(t, f.Drain())
}

func TestFeed_Subscribe(t *testing.T) {
	f := NewFeed(4)
	ch, cancel := f.Subscribe()

	f.Notify(LevelSuccess, "Chat deleted successfully")

	select {
	case n := <-ch:
		assert.Equal(t, "Chat deleted successfully", n.Message)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestFeed_Close(t *testing.T) {
	f := NewFeed(4)
	ch, cancel := f.Subscribe()
	f.Close()
	_, open := <-ch
	assert.False(t, open)
	cancel()

	f.Notify(LevelInfo, "ignored")
	assert.Empty(t, f.Drain())
}

func TestLogAndMulti(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := &Recorder{}
	n := Multi{NewLog(zap.New(core)), rec}

	n.Notify(LevelError, "Upload failed")
	n.Notify(LevelSuccess, "ok")

	assert.Equal(t, []string{"Upload failed", "ok"}, rec.Messages())
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "Upload failed", entries[0].Message)
}
