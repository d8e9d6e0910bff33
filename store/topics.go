package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"auto_linkedin_poster/model"
)

// InsertTopics stores topics whose SourceID has not been seen before and returns
// only the newly inserted ones, with ids assigned.
func (s *Store) InsertTopics(topics []model.Topic) ([]model.Topic, error) {
	var inserted []model.Topic
	for _, t := range topics {
		if t.SourceID == "" {
			return inserted, model.Errorf(model.KindValidation, "topic %q has no source id", t.Title)
		}
		var created bool
		err := s.update(func(txn *badger.Txn) error {
			created = false
			srcKey := []byte(prefixTopicSource + t.SourceID)
			if _, err := txn.Get(srcKey); err == nil {
				return nil
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			id, err := s.nextID(seqTopic)
			if err != nil {
				return err
			}
			t.ID = id
			t.ClusterID, t.RankScore, t.RankedAt, t.Eligible = nil, nil, nil, false
			if t.FetchedAt.IsZero() {
				t.FetchedAt = time.Now().UTC()
			}
			if err := setJSON(txn, idKey(prefixTopic, id), t); err != nil {
				return err
			}
			created = true
			return txn.Set(srcKey, []byte(strconv.FormatInt(id, 10)))
		})
		if err != nil {
			return inserted, fmt.Errorf("insert topic %s: %w", t.SourceID, err)
		}
		if created {
			inserted = append(inserted, t)
		}
	}
	return inserted, nil
}

// GetTopic returns one topic or a NotFound error.
func (s *Store) GetTopic(id int64) (model.Topic, error) {
	var t model.Topic
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, idKey(prefixTopic, id), &t)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Topic{}, model.Errorf(model.KindNotFound, "topic %d not found", id)
	}
	return t, err
}

// GetTopics resolves ids in order; ids that do not exist are returned in missing.
func (s *Store) GetTopics(ids []int64) (found []model.Topic, missing []int64, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var t model.Topic
			gerr := getJSON(txn, idKey(prefixTopic, id), &t)
			if errors.Is(gerr, badger.ErrKeyNotFound) {
				missing = append(missing, id)
				continue
			}
			if gerr != nil {
				return gerr
			}
			found = append(found, t)
		}
		return nil
	})
	return found, missing, err
}

// ListTopics returns the newest topics first, optionally filtered by source.
// limit <= 0 means no limit.
func (s *Store) ListTopics(limit int, source model.Source) ([]model.Topic, error) {
	var out []model.Topic
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixTopic, true, func(val []byte) (bool, error) {
			var t model.Topic
			if err := json.Unmarshal(val, &t); err != nil {
				return false, err
			}
			if source != "" && t.Source != source {
				return true, nil
			}
			out = append(out, t)
			return limit <= 0 || len(out) < limit, nil
		})
	})
	return out, err
}

// TopicsSince reads every topic fetched at or after since from one read
// transaction, so topics inserted concurrently are not part of the snapshot.
func (s *Store) TopicsSince(since time.Time) ([]model.Topic, error) {
	var out []model.Topic
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixTopic, false, func(val []byte) (bool, error) {
			var t model.Topic
			if err := json.Unmarshal(val, &t); err != nil {
				return false, err
			}
			if !t.FetchedAt.Before(since) {
				out = append(out, t)
			}
			return true, nil
		})
	})
	return out, err
}

// ApplyRankings replaces the ranking fields of every listed topic in a single transaction.
func (s *Store) ApplyRankings(rankings map[int64]model.Ranking) error {
	if len(rankings) == 0 {
		return nil
	}
	return s.update(func(txn *badger.Txn) error {
		for id, r := range rankings {
			var t model.Topic
			if err := getJSON(txn, idKey(prefixTopic, id), &t); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			t.Apply(r)
			if err := setJSON(txn, idKey(prefixTopic, id), t); err != nil {
				return err
			}
		}
		return nil
	})
}
