package model

import "time"

// Source identifies the upstream a topic was ingested from.
type Source string

const (
	SourceReddit Source = "reddit"
	SourceX      Source = "x"
	SourceOther  Source = "other"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceReddit, SourceX, SourceOther:
		return true
	}
	return false
}

// Topic is a candidate trending item ingested from a content source.
// ClusterID, RankScore and RankedAt stay nil until a ranking pass covered it.
type Topic struct {
	ID         int64      `json:"id"`
	Source     Source     `json:"source"`
	SourceID   string     `json:"source_id"`
	Title      string     `json:"title"`
	Content    string     `json:"content,omitempty"`
	URL        string     `json:"url"`
	Author     string     `json:"author"`
	Score      float64    `json:"score"`
	Engagement int64      `json:"engagement"`
	Hashtags   []string   `json:"hashtags,omitempty"`
	FetchedAt  time.Time  `json:"fetched_at"`
	ClusterID  *int64     `json:"cluster_id,omitempty"`
	RankScore  *float64   `json:"rank_score,omitempty"`
	Eligible   bool       `json:"eligible"`
	RankedAt   *time.Time `json:"ranked_at,omitempty"`
}

// Ranked reports whether a ranking pass has assigned a cluster and score.
func (t Topic) Ranked() bool {
	return t.ClusterID != nil && t.RankScore != nil
}

// Ranking is the wholesale replacement written by the ranking engine.
type Ranking struct {
	ClusterID int64
	RankScore float64
	Eligible  bool
	RankedAt  time.Time
}

// Apply replaces every ranking field of t at once.
func (t *Topic) Apply(r Ranking) {
	cid := r.ClusterID
	score := r.RankScore
	at := r.RankedAt
	t.ClusterID = &cid
	t.RankScore = &score
	t.Eligible = r.Eligible
	t.RankedAt = &at
}

// Trigger records who asked for a post or publish.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// LogLevel values used in the system journal.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// SystemLog is one append-only journal entry.
type SystemLog struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Settings is the process-wide, live-reloadable configuration singleton.
// Intervals are in seconds.
type Settings struct {
	FetchInterval  int     `json:"fetch_interval"`
	PostInterval   int     `json:"post_interval"`
	Paused         bool    `json:"paused"`
	MaxPostsPerDay int     `json:"max_posts_per_day"`
	MinTopicScore  float64 `json:"min_topic_score"`
}

// DefaultSettings mirrors the values seeded on first start.
func DefaultSettings() Settings {
	return Settings{
		FetchInterval:  12 * 3600,
		PostInterval:   3600,
		Paused:         false,
		MaxPostsPerDay: 5,
		MinTopicScore:  10,
	}
}

// FetchEvery returns the fetch cadence scaled by unit (normally time.Second).
func (s Settings) FetchEvery(unit time.Duration) time.Duration {
	return time.Duration(s.FetchInterval) * unit
}

// PostEvery returns the post cadence scaled by unit (normally time.Second).
func (s Settings) PostEvery(unit time.Duration) time.Duration {
	return time.Duration(s.PostInterval) * unit
}

// Status is derived on every request, never persisted.
type Status struct {
	SchedulerRunning   bool `json:"scheduler_running"`
	RedditConfigured   bool `json:"reddit_configured"`
	XConfigured        bool `json:"x_configured"`
	LinkedInConfigured bool `json:"linkedin_configured"`
	OpenAIConfigured   bool `json:"openai_configured"`
}
