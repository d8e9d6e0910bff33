package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_linkedin_poster/config"
	"auto_linkedin_poster/model"
)

const redditListing = `{"data":{"children":[
 {"data":{"id":"a1","title":"Kotlin 2.1 release notes","selftext":"","permalink":"/r/androiddev/comments/a1/","author":"dev1","score":120,"num_comments":30}},
 {"data":{"id":"a2","title":"Help my build is stuck","selftext":"","permalink":"/r/androiddev/comments/a2/","author":"dev2","score":500,"num_comments":40}},
 {"data":{"id":"a3","title":"Weekly thread kotlin","selftext":"","permalink":"/r/androiddev/comments/a3/","author":"mod","score":900,"num_comments":90,"stickied":true}},
 {"data":{"id":"a4","title":"kotlin flow tip","selftext":"","permalink":"/r/androiddev/comments/a4/","author":"","score":2,"num_comments":1}},
 {"data":{"id":"a5","title":"Compose performance guide","selftext":"kotlin inside","permalink":"/r/androiddev/comments/a5/","author":"dev5","score":80,"num_comments":10,"link_flair_text":"Question"}}
]}}`

func redditServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	})
	mux.HandleFunc("/r/androiddev/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, redditListing)
	})
	mux.HandleFunc("/r/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRedditFetchAppliesQualityFilter(t *testing.T) {
	var tokenCalls int32
	srv := redditServer(t, &tokenCalls)
	cat := StaticCatalog(Catalog{Reddit: RedditCatalog{Subreddits: []Subreddit{{
		Name:             "androiddev",
		MinScore:         50,
		MinComments:      5,
		KeywordsRequired: []string{"kotlin", "compose"},
		KeywordsExclude:  []string{"help"},
		FlairExclude:     []string{"question"},
	}}}})

	r := NewReddit(RedditOptions{
		Config:  config.RedditConfig{ClientID: "id", ClientSecret: "secret", UserAgent: "test"},
		Catalog: cat,
		AuthURL: srv.URL + "/api/v1/access_token",
		APIURL:  srv.URL,
	})
	require.True(t, r.Configured())

	topics, err := r.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 1, "hot and top return the same item once")
	got := topics[0]
	assert.Equal(t, "reddit_a1", got.SourceID)
	assert.Equal(t, model.SourceReddit, got.Source)
	assert.Equal(t, "https://reddit.com/r/androiddev/comments/a1/", got.URL)
	assert.Equal(t, 120.0, got.Score)
	assert.Equal(t, int64(30), got.Engagement)
	assert.Equal(t, []string{"#androiddev"}, got.Hashtags)

	_, err = r.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "token is cached")
}

func TestRedditAllListingsFailing(t *testing.T) {
	var tokenCalls int32
	srv := redditServer(t, &tokenCalls)
	r := NewReddit(RedditOptions{
		Config:  config.RedditConfig{ClientID: "id", ClientSecret: "secret"},
		Catalog: StaticCatalog(Catalog{Reddit: RedditCatalog{Subreddits: []Subreddit{{Name: "broken", SortBy: []string{"hot"}}}}}),
		AuthURL: srv.URL + "/api/v1/access_token",
		APIURL:  srv.URL,
	})
	_, err := r.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
}

func TestRedditNotConfigured(t *testing.T) {
	r := NewReddit(RedditOptions{Config: config.RedditConfig{ClientID: "only-id"}})
	assert.False(t, r.Configured())
	_, err := r.Fetch(context.Background())
	assert.True(t, errors.Is(err, model.ErrNotConfigured))
}

const xSearch = `{
 "data":[
  {"id":"10","text":"New #JetpackCompose release is out","author_id":"u1","public_metrics":{"like_count":20,"retweet_count":5,"reply_count":3,"quote_count":1},"entities":{"hashtags":[{"tag":"JetpackCompose"}]}},
  {"id":"11","text":"We are hiring android devs","author_id":"u1","public_metrics":{"like_count":99,"retweet_count":50}},
  {"id":"12","text":"low reach","author_id":"u9","public_metrics":{"like_count":1,"retweet_count":0}}
 ],
 "includes":{"users":[{"id":"u1","username":"androiddev"}]}
}`

func TestXFetchScoresAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer bt", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Query().Get("query"), "-is:retweet")
		fmt.Fprint(w, xSearch)
	}))
	defer srv.Close()

	x := NewX(XOptions{
		Config:  config.XConfig{BearerToken: "bt"},
		Catalog: StaticCatalog(Catalog{X: XCatalog{Hashtags: []string{"#AndroidDev"}, MinLikes: 10, ExcludeTerms: []string{"hiring"}}}),
		APIURL:  srv.URL,
	})
	topics, err := x.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 1)
	got := topics[0]
	assert.Equal(t, "x_10", got.SourceID)
	assert.Equal(t, 30.0, got.Score)
	assert.Equal(t, int64(4), got.Engagement)
	assert.Equal(t, "androiddev", got.Author)
	assert.Equal(t, "https://twitter.com/androiddev/status/10", got.URL)
	assert.Equal(t, []string{"#AndroidDev", "#JetpackCompose"}, got.Hashtags)
}

func TestXRateLimitedStopsEarly(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	x := NewX(XOptions{
		Config:  config.XConfig{BearerToken: "bt"},
		Catalog: StaticCatalog(Catalog{X: XCatalog{Hashtags: []string{"#a", "#b", "#c"}}}),
		APIURL:  srv.URL,
	})
	_, err := x.Fetch(context.Background())
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestParseCatalogDefaultsAndValidation(t *testing.T) {
	c, err := ParseCatalog([]byte(`
reddit:
  subreddits:
    - name: r/kotlin
      min_score: 30
x:
  hashtags: ["#Kotlin"]
  max_results: 500
`))
	require.NoError(t, err)
	require.Len(t, c.Reddit.Subreddits, 1)
	s := c.Reddit.Subreddits[0]
	assert.Equal(t, "kotlin", s.Name)
	assert.Equal(t, []string{"hot", "top"}, s.SortBy)
	assert.Equal(t, "day", s.TimeFilter)
	assert.Equal(t, 10, s.Limit)
	assert.True(t, s.IsEnabled())
	assert.Equal(t, 20, c.X.MaxResults)

	_, err = ParseCatalog([]byte("reddit:\n  subreddits:\n    - name: x\n      sort_by: [rising]\n"))
	assert.Error(t, err)

	missing, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), missing)
}

func TestCatalogWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x:\n  hashtags: [\"#one\"]\n"), 0o600))

	h, err := NewCatalogHolder(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"#one"}, h.Get().X.Hashtags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("x:\n  hashtags: [\"#two\"]\n"), 0o600))
	assert.Eventually(t, func() bool {
		tags := h.Get().X.Hashtags
		return len(tags) == 1 && tags[0] == "#two"
	}, 3*time.Second, 20*time.Millisecond)

	// broken content keeps the previous catalog
	require.NoError(t, os.WriteFile(path, []byte("x: [unterminated"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"#two"}, h.Get().X.Hashtags)
}

type fakeSource struct {
	name       model.Source
	configured bool
	topics     []model.Topic
	err        error
}

func (f fakeSource) Name() model.Source { return f.name }
func (f fakeSource) Configured() bool   { return f.configured }
func (f fakeSource) Fetch(context.Context) ([]model.Topic, error) {
	return f.topics, f.err
}

type memWriter struct {
	seen map[string]bool
}

func (m *memWriter) InsertTopics(topics []model.Topic) ([]model.Topic, error) {
	var out []model.Topic
	for _, t := range topics {
		if m.seen[t.SourceID] {
			continue
		}
		m.seen[t.SourceID] = true
		out = append(out, t)
	}
	return out, nil
}

func TestIngestorIsolatesFailures(t *testing.T) {
	w := &memWriter{seen: map[string]bool{"reddit_old": true}}
	in := NewIngestor(w, nil, nil,
		fakeSource{name: model.SourceReddit, configured: true, topics: []model.Topic{
			{SourceID: "reddit_old"}, {SourceID: "reddit_new"},
		}},
		fakeSource{name: model.SourceX, configured: true, err: errors.New("boom")},
	)
	res, err := in.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched[model.SourceReddit])
	assert.Equal(t, 1, res.Inserted[model.SourceReddit])
	assert.Equal(t, 1, res.TotalInserted())
	assert.Contains(t, res.Failed[model.SourceX], "boom")
}

func TestIngestorErrors(t *testing.T) {
	none := NewIngestor(&memWriter{seen: map[string]bool{}}, nil, nil, fakeSource{name: model.SourceX})
	_, err := none.Run(context.Background())
	assert.True(t, errors.Is(err, model.ErrNotConfigured))

	allFail := NewIngestor(&memWriter{seen: map[string]bool{}}, nil, nil,
		fakeSource{name: model.SourceX, configured: true, err: errors.New("down")})
	_, err = allFail.Run(context.Background())
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
}
