package store

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"auto_linkedin_poster/model"
)

// CreatePost assigns an id and stores p.
func (s *Store) CreatePost(p model.Post) (model.Post, error) {
	id, err := s.nextID(seqPost)
	if err != nil {
		return model.Post{}, err
	}
	p.ID = id
	err = s.update(func(txn *badger.Txn) error {
		return setJSON(txn, idKey(prefixPost, id), p)
	})
	return p, err
}

// GetPost returns one post or a NotFound error.
func (s *Store) GetPost(id int64) (model.Post, error) {
	var p model.Post
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, idKey(prefixPost, id), &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Post{}, model.Errorf(model.KindNotFound, "post %d not found", id)
	}
	return p, err
}

// ListPosts returns the newest posts first, optionally filtered by status.
func (s *Store) ListPosts(limit int, status model.PostStatus) ([]model.Post, error) {
	var out []model.Post
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixPost, true, func(val []byte) (bool, error) {
			var p model.Post
			if err := json.Unmarshal(val, &p); err != nil {
				return false, err
			}
			if status != "" && p.Status != status {
				return true, nil
			}
			out = append(out, p)
			return limit <= 0 || len(out) < limit, nil
		})
	})
	return out, err
}

// OldestPending returns the oldest post that is queued or edited.
func (s *Store) OldestPending() (model.Post, bool, error) {
	var (
		found model.Post
		ok    bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixPost, false, func(val []byte) (bool, error) {
			var p model.Post
			if err := json.Unmarshal(val, &p); err != nil {
				return false, err
			}
			if p.Pending() {
				found, ok = p, true
				return false, nil
			}
			return true, nil
		})
	})
	return found, ok, err
}

// UpdatePost applies fn to the stored post inside one transaction.
// If fn returns an error nothing is written.
func (s *Store) UpdatePost(id int64, fn func(p *model.Post) error) (model.Post, error) {
	var out model.Post
	err := s.update(func(txn *badger.Txn) error {
		var p model.Post
		if err := getJSON(txn, idKey(prefixPost, id), &p); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return model.Errorf(model.KindNotFound, "post %d not found", id)
			}
			return err
		}
		sources := append([]int64(nil), p.Sources...)
		if err := fn(&p); err != nil {
			return err
		}
		p.ID = id
		p.Sources = sources
		out = p
		return setJSON(txn, idKey(prefixPost, id), p)
	})
	return out, err
}

// DeletePost removes a post unless it has been posted.
func (s *Store) DeletePost(id int64) error {
	return s.update(func(txn *badger.Txn) error {
		var p model.Post
		if err := getJSON(txn, idKey(prefixPost, id), &p); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return model.Errorf(model.KindNotFound, "post %d not found", id)
			}
			return err
		}
		if err := p.CheckDeletable(); err != nil {
			return err
		}
		return txn.Delete(idKey(prefixPost, id))
	})
}
