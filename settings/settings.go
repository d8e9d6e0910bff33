// Package settings owns the live-reloadable Settings singleton and the derived Status.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"auto_linkedin_poster/config"
	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/model"
)

// Backend persists the singleton.
type Backend interface {
	LoadSettings() (model.Settings, error)
	SaveSettings(model.Settings) error
}

// Update is a partial settings change; nil fields are left untouched.
type Update struct {
	FetchInterval  *int     `json:"fetch_interval,omitempty" validate:"omitnil,min=60,max=86400"`
	PostInterval   *int     `json:"post_interval,omitempty" validate:"omitnil,min=60,max=43200"`
	Paused         *bool    `json:"paused,omitempty"`
	MaxPostsPerDay *int     `json:"max_posts_per_day,omitempty" validate:"omitnil,min=0,max=1000"`
	MinTopicScore  *float64 `json:"min_topic_score,omitempty" validate:"omitnil,min=0"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.FetchInterval == nil && u.PostInterval == nil && u.Paused == nil &&
		u.MaxPostsPerDay == nil && u.MinTopicScore == nil
}

func (u Update) apply(s model.Settings) model.Settings {
	if u.FetchInterval != nil {
		s.FetchInterval = *u.FetchInterval
	}
	if u.PostInterval != nil {
		s.PostInterval = *u.PostInterval
	}
	if u.Paused != nil {
		s.Paused = *u.Paused
	}
	if u.MaxPostsPerDay != nil {
		s.MaxPostsPerDay = *u.MaxPostsPerDay
	}
	if u.MinTopicScore != nil {
		s.MinTopicScore = *u.MinTopicScore
	}
	return s
}

// Service serializes writers and hands out value copies, so a reader never sees a torn update.
type Service struct {
	mu       sync.RWMutex
	current  model.Settings
	backend  Backend
	creds    config.Credentials
	validate *validator.Validate
	journal  *logging.Journal

	subMu sync.Mutex
	subs  []chan model.Settings
}

// New loads the persisted settings (seeding defaults) and returns a ready service.
func New(backend Backend, creds config.Credentials, journal *logging.Journal) (*Service, error) {
	cur, err := backend.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if creds == nil {
		creds = config.StaticCredentials{}
	}
	return &Service{
		current:  cur,
		backend:  backend,
		creds:    creds,
		validate: validator.New(),
		journal:  journal,
	}, nil
}

// Get returns a consistent snapshot.
func (s *Service) Get() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates u as a whole, persists it and notifies subscribers.
// An invalid update is rejected without applying any field.
func (s *Service) Update(u Update) (model.Settings, error) {
	if err := s.validate.Struct(u); err != nil {
		return model.Settings{}, validationError(err)
	}

	s.mu.Lock()
	next := u.apply(s.current)
	if err := s.backend.SaveSettings(next); err != nil {
		s.mu.Unlock()
		return model.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if prev != next {
		s.journal.Info(logging.ComponentSettings, "settings updated", map[string]any{
			"fetch_interval":    next.FetchInterval,
			"post_interval":     next.PostInterval,
			"paused":            next.Paused,
			"max_posts_per_day": next.MaxPostsPerDay,
			"min_topic_score":   next.MinTopicScore,
		})
		s.broadcast(next)
	}
	return next, nil
}

// SetPaused is the idempotent pause/resume entry point.
func (s *Service) SetPaused(paused bool) (model.Settings, error) {
	return s.Update(Update{Paused: &paused})
}

// Subscribe returns a channel that receives the latest settings after each change.
// The channel is buffered by one and only keeps the newest value.
func (s *Service) Subscribe() <-chan model.Settings {
	ch := make(chan model.Settings, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Service) broadcast(v model.Settings) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Status derives the connectivity flags and scheduler state.
func (s *Service) Status() model.Status {
	cur := s.Get()
	return model.Status{
		SchedulerRunning:   !cur.Paused,
		RedditConfigured:   s.creds.RedditConfigured(),
		XConfigured:        s.creds.XConfigured(),
		LinkedInConfigured: s.creds.LinkedInConfigured(),
		OpenAIConfigured:   s.creds.OpenAIConfigured(),
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.Wrap(model.KindValidation, err, "invalid settings")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", jsonName(fe.Field()), fe.Tag(), fe.Param()))
	}
	return model.Errorf(model.KindValidation, "%s", strings.Join(msgs, "; "))
}

func jsonName(field string) string {
	switch field {
	case "FetchInterval":
		return "fetch_interval"
	case "PostInterval":
		return "post_interval"
	case "MaxPostsPerDay":
		return "max_posts_per_day"
	case "MinTopicScore":
		return "min_topic_score"
	}
	return field
}
