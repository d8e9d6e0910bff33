package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"auto_linkedin_poster/config"
	"auto_linkedin_poster/model"
)

const (
	redditAuthURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL  = "https://oauth.reddit.com"
)

type RedditOptions struct {
	Config     config.RedditConfig
	Catalog    *CatalogHolder
	AuthURL    string
	APIURL     string
	HTTPClient *http.Client
	// Limiter defaults to 60 requests per minute.
	Limiter *rate.Limiter
	Now     func() time.Time
}

// Reddit reads subreddit listings with an app-only OAuth token.
type Reddit struct {
	cfg     config.RedditConfig
	catalog *CatalogHolder
	authURL string
	apiURL  string
	client  *client
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewReddit(opts RedditOptions) *Reddit {
	if opts.AuthURL == "" {
		opts.AuthURL = redditAuthURL
	}
	if opts.APIURL == "" {
		opts.APIURL = redditAPIURL
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Minute/60), 5)
	}
	if opts.Catalog == nil {
		opts.Catalog = StaticCatalog(DefaultCatalog())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reddit{
		cfg:     opts.Config,
		catalog: opts.Catalog,
		authURL: opts.AuthURL,
		apiURL:  strings.TrimRight(opts.APIURL, "/"),
		client:  newClient("reddit", opts.HTTPClient, opts.Limiter),
		now:     opts.Now,
	}
}

func (r *Reddit) Name() model.Source { return model.SourceReddit }

func (r *Reddit) Configured() bool {
	return r.cfg.ClientID != "" && r.cfg.ClientSecret != ""
}

// Fetch walks every enabled subreddit. A failing subreddit is skipped unless all of them fail.
func (r *Reddit) Fetch(ctx context.Context) ([]model.Topic, error) {
	if !r.Configured() {
		return nil, model.Errorf(model.KindNotConfigured, "reddit credentials are not configured")
	}
	token, err := r.accessToken(ctx)
	if err != nil {
		return nil, model.Wrap(model.KindUpstreamUnavailable, err, "reddit auth")
	}

	var (
		out      []model.Topic
		seen     = make(map[string]bool)
		attempts int
		lastErr  error
	)
	for _, sub := range r.catalog.Get().Reddit.Subreddits {
		if !sub.IsEnabled() {
			continue
		}
		for _, sort := range sub.SortBy {
			attempts++
			topics, err := r.listing(ctx, token, sub, sort)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				lastErr = fmt.Errorf("r/%s/%s: %w", sub.Name, sort, err)
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
	}
	if lastErr != nil && len(out) == 0 && attempts > 0 {
		return nil, model.Wrap(model.KindUpstreamUnavailable, lastErr, "reddit fetch")
	}
	return out, nil
}

func (r *Reddit) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token != "" && r.now().Before(r.expires) {
		return r.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(r.cfg.ClientID, r.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	body, err := r.client.do(req)
	if err != nil {
		return "", err
	}
	res := gjson.ParseBytes(body)
	token := res.Get("access_token").String()
	if token == "" {
		return "", fmt.Errorf("no access_token in response: %s", truncate(string(body), 200))
	}
	ttl := time.Duration(res.Get("expires_in").Int()) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	r.token = token
	r.expires = r.now().Add(ttl - time.Minute)
	return token, nil
}

func (r *Reddit) listing(ctx context.Context, token string, sub Subreddit, sort string) ([]model.Topic, error) {
	q := url.Values{"limit": {fmt.Sprint(sub.Limit)}, "raw_json": {"1"}}
	if sort == "top" {
		q.Set("t", sub.TimeFilter)
	}
	endpoint := fmt.Sprintf("%s/r/%s/%s?%s", r.apiURL, url.PathEscape(sub.Name), sort, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	body, err := r.client.do(req)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	var out []model.Topic
	gjson.GetBytes(body, "data.children.#.data").ForEach(func(_, post gjson.Result) bool {
		if !qualityPost(post, sub) {
			return true
		}
		author := post.Get("author").String()
		if author == "" {
			author = "deleted"
		}
		out = append(out, model.Topic{
			Source:     model.SourceReddit,
			SourceID:   "reddit_" + post.Get("id").String(),
			Title:      post.Get("title").String(),
			Content:    truncate(post.Get("selftext").String(), maxContentRunes),
			URL:        "https://reddit.com" + post.Get("permalink").String(),
			Author:     author,
			Score:      post.Get("score").Float(),
			Engagement: post.Get("num_comments").Int(),
			Hashtags:   []string{"#" + sub.Name},
			FetchedAt:  now,
		})
		return true
	})
	return out, nil
}

// qualityPost applies the per-subreddit filter: thresholds, stickied, flair and keywords.
func qualityPost(post gjson.Result, sub Subreddit) bool {
	if post.Get("id").String() == "" {
		return false
	}
	if post.Get("score").Int() < int64(sub.MinScore) || post.Get("num_comments").Int() < int64(sub.MinComments) {
		return false
	}
	if post.Get("stickied").Bool() {
		return false
	}
	if flair := post.Get("link_flair_text").String(); flair != "" {
		for _, f := range sub.FlairExclude {
			if strings.EqualFold(flair, f) {
				return false
			}
		}
	}
	text := strings.ToLower(post.Get("title").String() + "\n" + post.Get("selftext").String())
	if containsAny(text, sub.KeywordsExclude) {
		return false
	}
	if len(sub.KeywordsRequired) > 0 && !containsAny(text, sub.KeywordsRequired) {
		return false
	}
	return true
}
