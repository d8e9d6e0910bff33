package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_linkedin_poster/model"
)

type memStore struct {
	topics map[int64]model.Topic
	posts  []model.Post
}

func (m *memStore) GetTopics(ids []int64) ([]model.Topic, []int64, error) {
	var found []model.Topic
	var missing []int64
	for _, id := range ids {
		if t, ok := m.topics[id]; ok {
			found = append(found, t)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

func (m *memStore) CreatePost(p model.Post) (model.Post, error) {
	p.ID = int64(len(m.posts) + 1)
	m.posts = append(m.posts, p)
	return p, nil
}

func newStore() *memStore {
	return &memStore{topics: map[int64]model.Topic{
		1: {ID: 1, Source: model.SourceReddit, Title: "Compose 1.7 is out", URL: "https://reddit.com/r/androiddev/1", Score: 120},
		2: {ID: 2, Source: model.SourceX, Title: "Compose performance tips", URL: "https://twitter.com/a/status/2", Score: 40},
	}}
}

const goodReply = `{"hook":"Compose just got faster.","insight":"The 1.7 release cuts recomposition work.","takeaway":"Profile before you optimize.","cta":"What did you measure? #AndroidDev"}`

func TestGenerateStoresQueuedPost(t *testing.T) {
	store := newStore()
	llm := &MockLLM{Replies: []string{goodReply}}
	p := NewPipeline(llm, store, Options{})

	post, err := p.Generate(context.Background(), []int64{2, 1})
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, post.Status)
	assert.Equal(t, []int64{2, 1}, post.Sources)
	assert.Equal(t, []string{"https://twitter.com/a/status/2", "https://reddit.com/r/androiddev/1"}, post.SourceURLs)
	assert.Equal(t, model.TriggerManual, post.Trigger)
	assert.True(t, strings.HasPrefix(post.Content, "Compose just got faster.\n\nThe 1.7 release"))
	assert.Contains(t, post.Content, "Sources:\n• https://twitter.com/a/status/2\n• https://reddit.com/r/androiddev/1")
	assert.Equal(t, 1, llm.Calls())
	assert.Contains(t, llm.Prompts()[0].User, "1. Compose performance tips")
}

func TestGenerateValidation(t *testing.T) {
	p := NewPipeline(&MockLLM{}, newStore(), Options{})

	_, err := p.Generate(context.Background(), nil)
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = p.Generate(context.Background(), []int64{1, 1})
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = p.Generate(context.Background(), []int64{1, 999})
	assert.True(t, errors.Is(err, model.ErrInvalidTopics))
	assert.Equal(t, model.KindInvalidTopics, model.KindOf(err))
	assert.Equal(t, model.ClassValidation, model.KindOf(err).Class())
}

func TestGenerateNotConfigured(t *testing.T) {
	store := newStore()
	p := NewPipeline(nil, store, Options{})
	assert.False(t, p.Configured())
	_, err := p.Generate(context.Background(), []int64{1})
	assert.True(t, errors.Is(err, model.ErrNotConfigured))
	assert.Empty(t, store.posts)
}

func TestGenerateUpstreamFailureIsNotRetried(t *testing.T) {
	store := newStore()
	llm := &MockLLM{Err: errors.New("503 from model")}
	p := NewPipeline(llm, store, Options{})

	_, err := p.Generate(context.Background(), []int64{1})
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.Equal(t, 1, llm.Calls())
	assert.Empty(t, store.posts)
}

type slowLLM struct{}

func (slowLLM) Complete(ctx context.Context, _ Prompt) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGenerateTimeoutIsUpstreamUnavailable(t *testing.T) {
	p := NewPipeline(slowLLM{}, newStore(), Options{Timeout: 20 * time.Millisecond})
	_, err := p.Generate(context.Background(), []int64{1})
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGenerateRegeneratesThenTruncates(t *testing.T) {
	long := `{"hook":"` + strings.Repeat("word ", 200) + `","insight":"x","takeaway":"y","cta":"z"}`
	short := `{"hook":"short","insight":"x","takeaway":"y","cta":"z"}`

	t.Run("regenerated draft fits", func(t *testing.T) {
		store := newStore()
		llm := &MockLLM{Replies: []string{long, short}}
		p := NewPipeline(llm, store, Options{Limits: Limits{MaxLength: 300}})
		post, err := p.Generate(context.Background(), []int64{1})
		require.NoError(t, err)
		assert.Equal(t, 2, llm.Calls())
		assert.True(t, strings.HasPrefix(post.Content, "short"))
		assert.Len(t, llm.Prompts()[1].History, 2)
	})

	t.Run("still too long is truncated", func(t *testing.T) {
		store := newStore()
		llm := &MockLLM{Replies: []string{long}}
		p := NewPipeline(llm, store, Options{Limits: Limits{MaxLength: 300}})
		post, err := p.Generate(context.Background(), []int64{1})
		require.NoError(t, err)
		assert.Equal(t, 2, llm.Calls())
		assert.LessOrEqual(t, utf8.RuneCountInString(post.Content), 300)
		assert.Contains(t, post.Content, "…")
		assert.True(t, strings.HasSuffix(post.Content, "https://reddit.com/r/androiddev/1"))
	})
}

func TestParseSectionsFallbacks(t *testing.T) {
	s, err := ParseSections("```json\n" + goodReply + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Compose just got faster.", s.Hook)

	s, err = ParseSections("Hook line\nInsight one\nInsight two\nInsight three\nTakeaway\nCTA?")
	require.NoError(t, err)
	assert.Equal(t, "Hook line", s.Hook)
	assert.Equal(t, "Insight one\nInsight two\nInsight three", s.Insight)
	assert.Equal(t, "Takeaway", s.Takeaway)
	assert.Equal(t, "CTA?", s.CTA)

	_, err = ParseSections("   ")
	assert.Error(t, err)
}

func TestTruncateAtWord(t *testing.T) {
	got := TruncateAtWord("the quick brown fox jumps", 12)
	assert.Equal(t, "the quick…", got)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 12)
	assert.Equal(t, "short", TruncateAtWord("short", 12))
}
