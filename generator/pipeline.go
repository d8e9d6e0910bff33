// Package generator drafts posts from stored topics through an LLM.
package generator

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/metrics"
	"auto_linkedin_poster/model"
)

// MaxTopicsPerPost bounds a single generation request.
const MaxTopicsPerPost = 10

// Store is what the pipeline needs from persistence.
type Store interface {
	GetTopics(ids []int64) (found []model.Topic, missing []int64, err error)
	CreatePost(p model.Post) (model.Post, error)
}

type Options struct {
	Limits  Limits
	Timeout time.Duration
	Journal *logging.Journal
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Pipeline 负责根据选定话题生成帖子并入库（状态 queued）。
type Pipeline struct {
	llm   LLMClient
	store Store
	opts  Options
}

// NewPipeline accepts a nil llm; Generate then reports NotConfigured.
func NewPipeline(llm LLMClient, store Store, opts Options) *Pipeline {
	if opts.Limits.MaxLength <= 0 {
		opts.Limits.MaxLength = 3000
	}
	if opts.Limits.MinLength <= 0 {
		opts.Limits.MinLength = 900
	}
	if opts.Limits.TargetLength <= 0 {
		opts.Limits.TargetLength = 1500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{llm: llm, store: store, opts: opts}
}

func (p *Pipeline) Configured() bool { return p.llm != nil }

// Generate drafts a post for an operator request.
func (p *Pipeline) Generate(ctx context.Context, topicIDs []int64) (model.Post, error) {
	return p.GenerateFor(ctx, topicIDs, model.TriggerManual)
}

// GenerateFor drafts, stores and returns a queued post built from topicIDs, in order.
// Model failures are reported as UpstreamUnavailable and not retried here.
func (p *Pipeline) GenerateFor(ctx context.Context, topicIDs []int64, trigger model.Trigger) (model.Post, error) {
	if err := validateIDs(topicIDs); err != nil {
		return model.Post{}, err
	}
	topics, missing, err := p.store.GetTopics(topicIDs)
	if err != nil {
		return model.Post{}, fmt.Errorf("load topics: %w", err)
	}
	if len(missing) > 0 {
		return model.Post{}, model.Errorf(model.KindInvalidTopics, "unknown topic ids: %v", missing)
	}
	if p.llm == nil {
		return model.Post{}, model.Errorf(model.KindNotConfigured, "generation model is not configured")
	}

	draft, err := p.draft(ctx, topics)
	if err != nil {
		p.opts.Journal.Error(logging.ComponentGenerator, "post generation failed", map[string]any{
			"topic_ids": topicIDs,
			"error":     err.Error(),
		})
		return model.Post{}, err
	}

	urls := topicURLs(topics)
	post, err := p.store.CreatePost(model.NewPost(draft.Content, topicIDs, urls, trigger, p.opts.Now().UTC()))
	if err != nil {
		return model.Post{}, fmt.Errorf("store post: %w", err)
	}
	p.opts.Metrics.PostGenerated(string(trigger))
	p.opts.Journal.Info(logging.ComponentGenerator, "generated post", map[string]any{
		"post_id":     post.ID,
		"topic_ids":   topicIDs,
		"chars":       utf8.RuneCountInString(post.Content),
		"regenerated": draft.Regenerated,
		"truncated":   draft.Truncated,
		"trigger":     string(trigger),
	})
	return post, nil
}

// draft asks the model once, and once more with a tighter instruction when the
// result is over the limit; anything still too long is truncated.
func (p *Pipeline) draft(ctx context.Context, topics []model.Topic) (Draft, error) {
	limits := p.opts.Limits
	urls := topicURLs(topics)
	budget := limits.MaxLength - utf8.RuneCountInString(Attribution(urls))

	prompt := BuildPostPrompt(topics, limits)
	raw, sections, err := p.complete(ctx, prompt)
	if err != nil {
		return Draft{}, err
	}
	content := Compose(sections, urls)
	d := Draft{Sections: sections, Content: content}
	if n := utf8.RuneCountInString(content); n > limits.MaxLength {
		tighter := BuildTighterPrompt(prompt, raw, utf8.RuneCountInString(sections.Body()), max(budget, 0))
		_, retry, err := p.complete(ctx, tighter)
		if err != nil {
			return Draft{}, err
		}
		d.Sections, d.Regenerated = retry, true
	}
	d.Content, d.Truncated = Fit(d.Sections, urls, limits.MaxLength)
	return d, nil
}

func (p *Pipeline) complete(ctx context.Context, prompt Prompt) (string, Sections, error) {
	cctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.llm.Complete(cctx, prompt)
	p.opts.Metrics.LLMCall(time.Since(start), err)
	if err != nil {
		return "", Sections{}, model.Wrap(model.KindUpstreamUnavailable, err, "generation model")
	}
	sections, err := ParseSections(raw)
	if err != nil {
		return "", Sections{}, model.Wrap(model.KindUpstreamUnavailable, err, "generation model")
	}
	return raw, sections, nil
}

func validateIDs(ids []int64) error {
	if len(ids) == 0 {
		return model.Errorf(model.KindValidation, "topic_ids must not be empty")
	}
	if len(ids) > MaxTopicsPerPost {
		return model.Errorf(model.KindValidation, "at most %d topics per post", MaxTopicsPerPost)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return model.Errorf(model.KindValidation, "duplicate topic id %d", id)
		}
		seen[id] = true
	}
	return nil
}
