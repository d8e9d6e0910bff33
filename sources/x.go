package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"auto_linkedin_poster/config"
	"auto_linkedin_poster/model"
)

const xAPIURL = "https://api.twitter.com/2"

type XOptions struct {
	Config     config.XConfig
	Catalog    *CatalogHolder
	APIURL     string
	HTTPClient *http.Client
	// Limiter defaults to 300 requests per 15 minutes.
	Limiter *rate.Limiter
	Now     func() time.Time
}

// X searches recent posts for each configured hashtag.
type X struct {
	cfg     config.XConfig
	catalog *CatalogHolder
	apiURL  string
	client  *client
	now     func() time.Time
}

func NewX(opts XOptions) *X {
	if opts.APIURL == "" {
		opts.APIURL = xAPIURL
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(15*time.Minute/300), 10)
	}
	if opts.Catalog == nil {
		opts.Catalog = StaticCatalog(DefaultCatalog())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &X{
		cfg:     opts.Config,
		catalog: opts.Catalog,
		apiURL:  strings.TrimRight(opts.APIURL, "/"),
		client:  newClient("x", opts.HTTPClient, opts.Limiter),
		now:     opts.Now,
	}
}

func (x *X) Name() model.Source { return model.SourceX }

func (x *X) Configured() bool { return x.cfg.BearerToken != "" }

func (x *X) Fetch(ctx context.Context) ([]model.Topic, error) {
	if !x.Configured() {
		return nil, model.Errorf(model.KindNotConfigured, "x bearer token is not configured")
	}
	cat := x.catalog.Get().X

	var (
		out     []model.Topic
		seen    = make(map[string]bool)
		lastErr error
	)
	for _, tag := range cat.Hashtags {
		topics, err := x.search(ctx, tag, cat)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			lastErr = fmt.Errorf("search %s: %w", tag, err)
			var se *StatusError
			if errors.As(err, &se) && se.Status == http.StatusTooManyRequests {
				break
			}
			continue
		}
		for _, t := range topics {
			if seen[t.SourceID] {
				continue
			}
			seen[t.SourceID] = true
			out = append(out, t)
		}
	}
	if lastErr != nil && len(out) == 0 {
		return nil, model.Wrap(model.KindUpstreamUnavailable, lastErr, "x fetch")
	}
	return out, nil
}

func (x *X) search(ctx context.Context, hashtag string, cat XCatalog) ([]model.Topic, error) {
	q := url.Values{
		"query":        {hashtag + " -is:retweet lang:en"},
		"max_results":  {fmt.Sprint(cat.MaxResults)},
		"tweet.fields": {"created_at,author_id,public_metrics,entities"},
		"expansions":   {"author_id"},
		"user.fields":  {"username"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.apiURL+"/tweets/search/recent?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+x.cfg.BearerToken)
	req.Header.Set("User-Agent", "AndroidTrendFetcher/1.0")

	body, err := x.client.do(req)
	if err != nil {
		return nil, err
	}

	users := make(map[string]string)
	gjson.GetBytes(body, "includes.users").ForEach(func(_, u gjson.Result) bool {
		users[u.Get("id").String()] = u.Get("username").String()
		return true
	})

	now := x.now().UTC()
	var out []model.Topic
	gjson.GetBytes(body, "data").ForEach(func(_, tw gjson.Result) bool {
		id := tw.Get("id").String()
		text := tw.Get("text").String()
		if id == "" || containsAny(strings.ToLower(text), cat.ExcludeTerms) {
			return true
		}
		m := tw.Get("public_metrics")
		likes, retweets := m.Get("like_count").Int(), m.Get("retweet_count").Int()
		if likes < int64(cat.MinLikes) || retweets < int64(cat.MinRetweets) {
			return true
		}
		author, ok := users[tw.Get("author_id").String()]
		if !ok || author == "" {
			author = "unknown"
		}
		handle := author
		if handle == "unknown" {
			handle = "user"
		}
		tags := []string{hashtag}
		tw.Get("entities.hashtags.#.tag").ForEach(func(_, tag gjson.Result) bool {
			tags = append(tags, "#"+tag.String())
			return true
		})
		out = append(out, model.Topic{
			Source:     model.SourceX,
			SourceID:   "x_" + id,
			Title:      truncate(text, 200),
			Content:    text,
			URL:        fmt.Sprintf("https://twitter.com/%s/status/%s", handle, id),
			Author:     author,
			Score:      float64(likes + 2*retweets),
			Engagement: m.Get("reply_count").Int() + m.Get("quote_count").Int(),
			Hashtags:   tags,
			FetchedAt:  now,
		})
		return true
	})
	return out, nil
}
