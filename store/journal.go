package store

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"auto_linkedin_poster/model"
)

// AppendLog stores a system journal entry.
func (s *Store) AppendLog(entry model.SystemLog) (model.SystemLog, error) {
	id, err := s.nextID(seqLog)
	if err != nil {
		return model.SystemLog{}, err
	}
	entry.ID = id
	err = s.update(func(txn *badger.Txn) error {
		return setJSON(txn, idKey(prefixLog, id), entry)
	})
	return entry, err
}

// ListLogs returns the newest entries first, optionally filtered by component.
func (s *Store) ListLogs(limit int, component string) ([]model.SystemLog, error) {
	var out []model.SystemLog
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixLog, true, func(val []byte) (bool, error) {
			var e model.SystemLog
			if err := json.Unmarshal(val, &e); err != nil {
				return false, err
			}
			if component != "" && e.Component != component {
				return true, nil
			}
			out = append(out, e)
			return limit <= 0 || len(out) < limit, nil
		})
	})
	return out, err
}

// LoadSettings returns the stored settings, seeding defaults on first use.
func (s *Store) LoadSettings() (model.Settings, error) {
	var st model.Settings
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(keySettings), &st)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		st = model.DefaultSettings()
		return st, s.SaveSettings(st)
	}
	return st, err
}

// SaveSettings overwrites the settings singleton.
func (s *Store) SaveSettings(st model.Settings) error {
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, []byte(keySettings), st)
	})
}

// AutoPublishCount returns how many automatic publishes were recorded on day (YYYY-MM-DD).
func (s *Store) AutoPublishCount(day string) (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readCounter(txn, prefixAutoPublish+day)
		return err
	})
	return n, err
}

// IncrAutoPublish bumps the day's counter and returns the new value.
func (s *Store) IncrAutoPublish(day string) (int, error) {
	var n int
	err := s.update(func(txn *badger.Txn) error {
		cur, err := readCounter(txn, prefixAutoPublish+day)
		if err != nil {
			return err
		}
		n = cur + 1
		return txn.Set([]byte(prefixAutoPublish+day), []byte(strconv.Itoa(n)))
	})
	return n, err
}

func readCounter(txn *badger.Txn, key string) (int, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int
	err = item.Value(func(val []byte) error {
		var perr error
		n, perr = strconv.Atoi(string(val))
		return perr
	})
	return n, err
}
