package logging

import (
	"time"

	"github.com/sirupsen/logrus"

	"auto_linkedin_poster/model"
)

// Components that write to the system journal.
const (
	ComponentFetcher   = "fetcher"
	ComponentRanking   = "ranking"
	ComponentGenerator = "generator"
	ComponentPublisher = "publisher"
	ComponentScheduler = "scheduler"
	ComponentSettings  = "settings"
)

// LogAppender persists journal entries.
type LogAppender interface {
	AppendLog(entry model.SystemLog) (model.SystemLog, error)
}

// Journal writes the append-only audit trail and mirrors each entry to logrus.
// A failing appender never fails the caller; the entry is still logged.
type Journal struct {
	store  LogAppender
	logger Logger
	now    func() time.Time
}

func NewJournal(store LogAppender, logger Logger) *Journal {
	if logger == nil {
		logger = Discard()
	}
	return &Journal{store: store, logger: logger, now: time.Now}
}

func (j *Journal) Info(component, message string, details map[string]any) {
	j.Record(model.LevelInfo, component, message, details)
}

func (j *Journal) Warn(component, message string, details map[string]any) {
	j.Record(model.LevelWarning, component, message, details)
}

func (j *Journal) Error(component, message string, details map[string]any) {
	j.Record(model.LevelError, component, message, details)
}

// Record appends one entry. Safe to call on a nil *Journal.
func (j *Journal) Record(level, component, message string, details map[string]any) {
	if j == nil {
		return
	}
	entry := j.logger.WithFields(logrus.Fields{"component": component})
	for k, v := range details {
		entry = entry.WithField(k, v)
	}
	switch level {
	case model.LevelError:
		entry.Error(message)
	case model.LevelWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}

	if j.store == nil {
		return
	}
	_, err := j.store.AppendLog(model.SystemLog{
		Timestamp: j.now().UTC(),
		Level:     level,
		Component: component,
		Message:   message,
		Details:   details,
	})
	if err != nil {
		j.logger.WithError(err).WithField("component", component).Warn("failed to persist system log")
	}
}
