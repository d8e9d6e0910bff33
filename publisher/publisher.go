// Package publisher pushes queued posts to LinkedIn and records the outcome.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/metrics"
	"auto_linkedin_poster/model"
)

// Store is what the publisher needs from persistence.
type Store interface {
	GetPost(id int64) (model.Post, error)
	UpdatePost(id int64, fn func(p *model.Post) error) (model.Post, error)
	DeletePost(id int64) error
}

type Options struct {
	// Timeout bounds one platform call; defaults to 30s.
	Timeout   time.Duration
	MaxLength int
	Journal   *logging.Journal
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Publisher orchestrates rendering and upload to the platform.
// Publish, Edit and Delete of one post id hold the same slot, so at most one of
// them runs at a time.
type Publisher struct {
	platform Platform
	store    Store
	opts     Options

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func New(platform Platform, store Store, opts Options) *Publisher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 3000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{platform: platform, store: store, opts: opts, inflight: make(map[int64]struct{})}
}

func (p *Publisher) Configured() bool {
	return p.platform != nil && p.platform.Configured()
}

// InFlight reports whether a mutation of id is currently running.
func (p *Publisher) InFlight(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[id]
	return ok
}

func (p *Publisher) acquire(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[id]; ok {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Publisher) release(id int64) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

// Publish sends post id to the platform. A platform failure is not an error: the post
// comes back in the failed state with ErrorMessage set. Errors are reserved for
// requests that could not start (NotConfigured, NotFound, Immutable, AlreadyRunning)
// and for storage failures.
//
// Once the platform call starts it is not cancelled by ctx; only the timeout bounds it.
func (p *Publisher) Publish(ctx context.Context, id int64, trigger model.Trigger) (model.Post, error) {
	if !p.Configured() {
		return model.Post{}, model.Errorf(model.KindNotConfigured, "linkedin credentials are not configured")
	}
	if !p.acquire(id) {
		return model.Post{}, model.Errorf(model.KindAlreadyRunning, "post %d is already being published", id)
	}
	defer p.release(id)

	post, err := p.store.GetPost(id)
	if err != nil {
		return model.Post{}, err
	}
	if !post.Publishable() {
		return post, model.Errorf(model.KindImmutable, "post %d is already posted", id)
	}

	text := RenderPlainText(post.Content, p.opts.MaxLength)
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.Timeout)
	platformID, perr := p.platform.Post(callCtx, text)
	cancel()

	if perr != nil {
		reason := failureReason(perr)
		updated, err := p.store.UpdatePost(id, func(pp *model.Post) error { return pp.MarkFailed(reason) })
		p.opts.Metrics.Publish(string(trigger), string(model.StatusFailed))
		p.opts.Journal.Error(logging.ComponentPublisher, "publish failed", map[string]any{
			"post_id": id,
			"trigger": string(trigger),
			"error":   reason,
		})
		if err != nil {
			return model.Post{}, fmt.Errorf("record failed publish of post %d: %w", id, err)
		}
		return updated, nil
	}

	updated, err := p.store.UpdatePost(id, func(pp *model.Post) error {
		return pp.MarkPosted(platformID, p.opts.Now().UTC())
	})
	if err != nil {
		p.opts.Journal.Error(logging.ComponentPublisher, "published but could not record state", map[string]any{
			"post_id":          id,
			"platform_post_id": platformID,
			"error":            err.Error(),
		})
		return model.Post{}, fmt.Errorf("record publish of post %d: %w", id, err)
	}
	p.opts.Metrics.Publish(string(trigger), string(model.StatusPosted))
	p.opts.Journal.Info(logging.ComponentPublisher, "post published", map[string]any{
		"post_id":          id,
		"platform_post_id": platformID,
		"url":              PostURL(platformID),
		"trigger":          string(trigger),
	})
	return updated, nil
}

// Edit applies fn to the stored post while holding the post's slot.
func (p *Publisher) Edit(id int64, fn func(post *model.Post) error) (model.Post, error) {
	if !p.acquire(id) {
		return model.Post{}, model.Errorf(model.KindAlreadyRunning, "post %d is being published", id)
	}
	defer p.release(id)
	return p.store.UpdatePost(id, fn)
}

// Delete removes a post that is not posted while holding the post's slot.
func (p *Publisher) Delete(id int64) error {
	if !p.acquire(id) {
		return model.Errorf(model.KindAlreadyRunning, "post %d is being published", id)
	}
	defer p.release(id)
	return p.store.DeletePost(id)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "linkedin temporarily unavailable: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "linkedin request timed out"
	}
	return err.Error()
}
