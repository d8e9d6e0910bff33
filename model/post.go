package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// PostStatus is a node of the post lifecycle state machine.
type PostStatus string

const (
	StatusQueued PostStatus = "queued"
	StatusPosted PostStatus = "posted"
	StatusFailed PostStatus = "failed"
	StatusEdited PostStatus = "edited"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusPosted, StatusFailed, StatusEdited:
		return true
	}
	return false
}

// Post is a generated, platform-bound piece of content.
// PostedAt is non-nil iff Status == StatusPosted; Sources never changes after creation.
type Post struct {
	ID             int64      `json:"id"`
	Content        string     `json:"content"`
	Status         PostStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	Sources        []int64    `json:"sources"`
	SourceURLs     []string   `json:"source_urls,omitempty"`
	PlatformPostID string     `json:"platform_post_id,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Trigger        Trigger    `json:"trigger,omitempty"`
}

// NewPost builds a queued post; sources are copied so callers cannot mutate them later.
func NewPost(content string, sources []int64, urls []string, trigger Trigger, now time.Time) Post {
	return Post{
		Content:    content,
		Status:     StatusQueued,
		CreatedAt:  now,
		Sources:    append([]int64(nil), sources...),
		SourceURLs: append([]string(nil), urls...),
		Trigger:    trigger,
	}
}

// Publishable reports whether a publish attempt may start from the current state.
func (p Post) Publishable() bool {
	switch p.Status {
	case StatusQueued, StatusEdited, StatusFailed:
		return true
	}
	return false
}

// Pending reports whether the post waits in the publish queue. Failed posts are
// only retried by hand.
func (p Post) Pending() bool {
	return p.Status == StatusQueued || p.Status == StatusEdited
}

// Edit rewrites the content and moves the post to edited.
func (p *Post) Edit(content string, maxLen int) error {
	if p.Status == StatusPosted {
		return Errorf(KindImmutable, "post %d is already posted", p.ID)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Errorf(KindValidation, "content must not be empty")
	}
	if maxLen > 0 && utf8.RuneCountInString(content) > maxLen {
		return Errorf(KindValidation, "content exceeds %d characters", maxLen)
	}
	p.Content = content
	p.Status = StatusEdited
	p.ErrorMessage = ""
	return nil
}

// MarkPosted is the terminal success transition.
func (p *Post) MarkPosted(platformID string, at time.Time) error {
	if !p.Publishable() {
		return Errorf(KindImmutable, "post %d cannot move from %s to posted", p.ID, p.Status)
	}
	p.Status = StatusPosted
	p.PostedAt = &at
	p.PlatformPostID = platformID
	p.ErrorMessage = ""
	return nil
}

// MarkFailed records a failed publish attempt; the post stays retryable.
func (p *Post) MarkFailed(reason string) error {
	if !p.Publishable() {
		return Errorf(KindImmutable, "post %d cannot move from %s to failed", p.ID, p.Status)
	}
	p.Status = StatusFailed
	p.PostedAt = nil
	p.ErrorMessage = reason
	return nil
}

// CheckDeletable rejects deleting posted history.
func (p Post) CheckDeletable() error {
	if p.Status == StatusPosted {
		return Errorf(KindImmutable, "post %d is posted and cannot be deleted", p.ID)
	}
	return nil
}
