package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"auto_linkedin_poster/logging"
)

// Catalog describes what to pull from each upstream.
type Catalog struct {
	Reddit RedditCatalog `yaml:"reddit"`
	X      XCatalog      `yaml:"x"`
}

type RedditCatalog struct {
	Subreddits []Subreddit `yaml:"subreddits"`
}

// Subreddit carries the listing options and quality filter for one community.
type Subreddit struct {
	Name             string   `yaml:"name"`
	Enabled          *bool    `yaml:"enabled,omitempty"`
	SortBy           []string `yaml:"sort_by,omitempty"`
	TimeFilter       string   `yaml:"time_filter,omitempty"`
	Limit            int      `yaml:"limit,omitempty"`
	MinScore         int      `yaml:"min_score,omitempty"`
	MinComments      int      `yaml:"min_comments,omitempty"`
	KeywordsRequired []string `yaml:"keywords_required,omitempty"`
	KeywordsExclude  []string `yaml:"keywords_exclude,omitempty"`
	FlairExclude     []string `yaml:"flair_exclude,omitempty"`
}

func (s Subreddit) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

type XCatalog struct {
	Hashtags     []string `yaml:"hashtags"`
	MaxResults   int      `yaml:"max_results,omitempty"`
	MinLikes     int      `yaml:"min_likes,omitempty"`
	MinRetweets  int      `yaml:"min_retweets,omitempty"`
	ExcludeTerms []string `yaml:"exclude_terms,omitempty"`
}

// DefaultCatalog is used when no catalog file exists.
func DefaultCatalog() Catalog {
	c := Catalog{
		Reddit: RedditCatalog{Subreddits: []Subreddit{
			{Name: "androiddev"},
			{Name: "android"},
			{Name: "Kotlin"},
			{Name: "JetpackCompose"},
		}},
		X: XCatalog{Hashtags: []string{"#AndroidDev", "#Kotlin", "#JetpackCompose", "#AndroidDevelopment", "#MobileApp"}},
	}
	c.applyDefaults()
	return c
}

func (c *Catalog) applyDefaults() {
	for i := range c.Reddit.Subreddits {
		s := &c.Reddit.Subreddits[i]
		s.Name = strings.TrimPrefix(strings.TrimSpace(s.Name), "r/")
		if len(s.SortBy) == 0 {
			s.SortBy = []string{"hot", "top"}
		}
		if s.TimeFilter == "" {
			s.TimeFilter = "day"
		}
		if s.Limit <= 0 {
			s.Limit = 10
		}
	}
	if c.X.MaxResults < 10 || c.X.MaxResults > 100 {
		c.X.MaxResults = 20
	}
}

func (c Catalog) validate() error {
	for _, s := range c.Reddit.Subreddits {
		if s.Name == "" {
			return errors.New("subreddit without name")
		}
		for _, sort := range s.SortBy {
			if sort != "hot" && sort != "top" && sort != "new" {
				return fmt.Errorf("subreddit %s: unknown sort %q", s.Name, sort)
			}
		}
	}
	for _, h := range c.X.Hashtags {
		if strings.TrimSpace(h) == "" {
			return errors.New("empty hashtag")
		}
	}
	return nil
}

// LoadCatalog reads a YAML catalog; a missing file yields DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return Catalog{}, err
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse sources catalog: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Catalog{}, fmt.Errorf("invalid sources catalog: %w", err)
	}
	return c, nil
}

// CatalogHolder serves the current catalog and swaps it when the file changes.
type CatalogHolder struct {
	mu      sync.RWMutex
	path    string
	current Catalog
	logger  logging.Logger
}

func NewCatalogHolder(path string, logger logging.Logger) (*CatalogHolder, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	c, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	return &CatalogHolder{path: path, current: c, logger: logger}, nil
}

// StaticCatalog wraps a fixed catalog.
func StaticCatalog(c Catalog) *CatalogHolder {
	c.applyDefaults()
	return &CatalogHolder{current: c, logger: logging.Discard()}
}

func (h *CatalogHolder) Get() Catalog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload re-reads the file. A broken file keeps the previous catalog.
func (h *CatalogHolder) Reload() error {
	if h.path == "" {
		return nil
	}
	c, err := LoadCatalog(h.path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.current = c
	h.mu.Unlock()
	return nil
}

// Watch reloads the catalog on file changes until ctx is cancelled.
// The parent directory is watched so editors that replace the file are seen too.
func (h *CatalogHolder) Watch(ctx context.Context) error {
	if h.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log := logging.ForComponent(h.logger, logging.ComponentFetcher).WithField("path", h.path)
	target := filepath.Clean(h.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := h.Reload(); err != nil {
				log.WithError(err).Warn("sources catalog reload failed, keeping previous")
				continue
			}
			log.Info("sources catalog reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("sources catalog watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}
