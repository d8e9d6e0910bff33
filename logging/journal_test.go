package logging

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_linkedin_poster/model"
)

type memAppender struct {
	mu      sync.Mutex
	entries []model.SystemLog
	err     error
}

func (m *memAppender) AppendLog(e model.SystemLog) (model.SystemLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.SystemLog{}, m.err
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return e, nil
}

func TestJournalPersistsAndMirrors(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug")
	logger.SetOutput(&buf)

	store := &memAppender{}
	j := NewJournal(store, logger)
	j.Warn(ComponentPublisher, "publish failed", map[string]any{"post_id": int64(7)})

	require.Len(t, store.entries, 1)
	got := store.entries[0]
	assert.Equal(t, model.LevelWarning, got.Level)
	assert.Equal(t, ComponentPublisher, got.Component)
	assert.Equal(t, int64(7), got.Details["post_id"])
	assert.False(t, got.Timestamp.IsZero())

	assert.Contains(t, buf.String(), `"component":"publisher"`)
	assert.Contains(t, buf.String(), "publish failed")
}

func TestJournalSurvivesStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info")
	logger.SetOutput(&buf)

	j := NewJournal(&memAppender{err: errors.New("disk full")}, logger)
	assert.NotPanics(t, func() { j.Error(ComponentScheduler, "tick failed", nil) })
	assert.Contains(t, buf.String(), "failed to persist system log")

	var nilJournal *Journal
	assert.NotPanics(t, func() { nilJournal.Info(ComponentFetcher, "noop", nil) })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}
