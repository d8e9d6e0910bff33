package sources

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/metrics"
	"auto_linkedin_poster/model"
)

// TopicWriter stores topics, skipping already known source ids.
type TopicWriter interface {
	InsertTopics(topics []model.Topic) ([]model.Topic, error)
}

// IngestResult summarizes one ingestion pass.
type IngestResult struct {
	Fetched  map[model.Source]int
	Inserted map[model.Source]int
	Failed   map[model.Source]string
}

func (r IngestResult) TotalInserted() int {
	n := 0
	for _, v := range r.Inserted {
		n += v
	}
	return n
}

// Ingestor fans out to every configured source and stores what comes back.
type Ingestor struct {
	sources []Source
	store   TopicWriter
	journal *logging.Journal
	metrics *metrics.Metrics
}

func NewIngestor(store TopicWriter, journal *logging.Journal, m *metrics.Metrics, srcs ...Source) *Ingestor {
	return &Ingestor{sources: srcs, store: store, journal: journal, metrics: m}
}

// Configured reports whether at least one source has credentials.
func (in *Ingestor) Configured() bool {
	for _, s := range in.sources {
		if s.Configured() {
			return true
		}
	}
	return false
}

// Run fetches all configured sources concurrently. A failing source is logged and
// does not affect the others; Run only errors when nothing could be stored at all.
func (in *Ingestor) Run(ctx context.Context) (IngestResult, error) {
	res := IngestResult{
		Fetched:  make(map[model.Source]int),
		Inserted: make(map[model.Source]int),
		Failed:   make(map[model.Source]string),
	}
	if !in.Configured() {
		in.journal.Warn(logging.ComponentFetcher, "no content source is configured", nil)
		return res, model.Errorf(model.KindNotConfigured, "no content source is configured")
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range in.sources {
		if !src.Configured() {
			in.journal.Warn(logging.ComponentFetcher, "source not configured, skipping", map[string]any{"source": string(src.Name())})
			continue
		}
		src := src
		g.Go(func() error {
			name := src.Name()
			topics, err := src.Fetch(gctx)
			if err != nil {
				in.metrics.SourceError(string(name))
				in.journal.Error(logging.ComponentFetcher, "source fetch failed", map[string]any{
					"source": string(name),
					"error":  err.Error(),
				})
				mu.Lock()
				res.Failed[name] = err.Error()
				mu.Unlock()
				return nil
			}
			inserted, err := in.store.InsertTopics(topics)
			mu.Lock()
			res.Fetched[name] = len(topics)
			res.Inserted[name] = len(inserted)
			if err != nil {
				res.Failed[name] = err.Error()
			}
			mu.Unlock()
			in.metrics.TopicsFetched(string(name), len(inserted))
			if err != nil {
				in.journal.Error(logging.ComponentFetcher, "storing topics failed", map[string]any{
					"source": string(name),
					"error":  err.Error(),
				})
				return nil
			}
			in.journal.Info(logging.ComponentFetcher, "fetched topics", map[string]any{
				"source":   string(name),
				"fetched":  len(topics),
				"inserted": len(inserted),
			})
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(res.Failed) > 0 && len(res.Fetched) == 0 {
		names := make([]string, 0, len(res.Failed))
		for n := range res.Failed {
			names = append(names, string(n))
		}
		sort.Strings(names)
		return res, model.Errorf(model.KindUpstreamUnavailable, "all sources failed: %v", names)
	}
	return res, nil
}
