// Package store keeps topics, posts, the system journal and settings in Badger.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"auto_linkedin_poster/logging"
)

const (
	prefixTopic       = "topic/"
	prefixTopicSource = "topicsrc/"
	prefixPost        = "post/"
	prefixLog         = "log/"
	prefixAutoPublish = "autopub/"
	keySettings       = "settings"

	seqTopic = "seq/topic"
	seqPost  = "seq/post"
	seqLog   = "seq/log"

	conflictRetries = 8
)

// Config controls how the database is opened.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     logging.Logger
	// GCInterval enables periodic value log GC; zero disables it.
	GCInterval time.Duration
}

// Store is the durable state of the service.
type Store struct {
	db     *badger.DB
	seqs   map[string]*badger.Sequence
	gc     *gcRunner
	logger logging.Logger
}

type badgerLogger struct {
	entry *logrus.Entry
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.entry.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.entry.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.entry.Debugf(format, args...) }

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{entry: logging.ForComponent(cfg.Logger, "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db, seqs: make(map[string]*badger.Sequence), logger: cfg.Logger}
	for _, name := range []string{seqTopic, seqPost, seqLog} {
		seq, err := db.GetSequence([]byte(name), 100)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open sequence %s: %w", name, err)
		}
		s.seqs[name] = seq
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = startGC(db, cfg.GCInterval, cfg.Logger)
	}
	return s, nil
}

// OpenInMemory is used by tests and dry runs.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close releases sequences, stops GC and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	for _, seq := range s.seqs {
		_ = seq.Release()
	}
	return s.db.Close()
}

// nextID returns ids starting at 1.
func (s *Store) nextID(name string) (int64, error) {
	n, err := s.seqs[name].Next()
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return int64(n) + 1, nil
}

// update retries fn on transaction conflicts so concurrent writers to the same key are linearized.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func idKey(prefix string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scan walks every value under prefix, newest key first when reverse is set.
// fn returns false to stop.
func scan(txn *badger.Txn, prefix string, reverse bool, fn func(val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := []byte(prefix)
	if reverse {
		seek = append([]byte(prefix), 0xFF)
	}
	for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
		var cont bool
		err := it.Item().Value(func(val []byte) error {
			var ferr error
			cont, ferr = fn(val)
			return ferr
		})
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

type gcRunner struct {
	db     *badger.DB
	stopCh chan struct{}
	doneCh chan struct{}
}

func startGC(db *badger.DB, interval time.Duration, logger logging.Logger) *gcRunner {
	r := &gcRunner{db: db, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				if err := db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
					logger.WithError(err).Warn("badger value log GC error")
				}
			}
		}
	}()
	return r
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}
