// Package ranking groups recent topics into similarity clusters and scores them.
package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/metrics"
	"auto_linkedin_poster/model"
)

// Weights of the rank formula.
const (
	weightScore         = 0.35
	weightEngagement    = 0.25
	weightRecency       = 0.30
	weightCorroboration = 0.10

	// MaxClusterTopics bounds how many topics TopCluster hands to generation.
	MaxClusterTopics = 3
)

type Store interface {
	TopicsSince(since time.Time) ([]model.Topic, error)
	ApplyRankings(rankings map[int64]model.Ranking) error
}

type Options struct {
	Similarity Similarity
	// Fallback is used when Similarity fails; defaults to Lexical.
	Fallback  Similarity
	Threshold float64
	Window    time.Duration
	HalfLife  time.Duration
	// MinScore returns the current eligibility threshold.
	MinScore func() float64
	Now      func() time.Time
	Journal  *logging.Journal
	Metrics  *metrics.Metrics
}

// Cluster is one connected component of the similarity graph.
// ID is the smallest topic id in the component.
type Cluster struct {
	ID       int64
	TopicIDs []int64
	// Best is the highest rank of an eligible member, or -1 when none is eligible.
	Best float64
}

// Result holds the ranked snapshot, topics ordered best first.
type Result struct {
	Topics   []model.Topic
	Clusters []Cluster
}

type Engine struct {
	store Store
	opts  Options
}

func NewEngine(store Store, opts Options) *Engine {
	if opts.Similarity == nil {
		opts.Similarity = Lexical{}
	}
	if opts.Fallback == nil {
		opts.Fallback = Lexical{}
	}
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = 0.35
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.HalfLife <= 0 {
		opts.HalfLife = 6 * time.Hour
	}
	if opts.MinScore == nil {
		opts.MinScore = func() float64 { return model.DefaultSettings().MinTopicScore }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{store: store, opts: opts}
}

// Rank re-ranks every topic inside the window. The snapshot is read once, so topics
// stored while the pass runs are left for the next one. Running Rank twice over the
// same snapshot assigns the same clusters and scores.
func (e *Engine) Rank(ctx context.Context) (Result, error) {
	return e.RankWithMin(ctx, e.opts.MinScore())
}

// RankWithMin is Rank with an explicit eligibility threshold.
func (e *Engine) RankWithMin(ctx context.Context, minScore float64) (Result, error) {
	start := time.Now()
	now := e.opts.Now().UTC()

	topics, err := e.store.TopicsSince(now.Add(-e.opts.Window))
	if err != nil {
		return Result{}, fmt.Errorf("read ranking snapshot: %w", err)
	}
	if len(topics) == 0 {
		e.opts.Journal.Info(logging.ComponentRanking, "no topics inside ranking window", nil)
		return Result{}, nil
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })

	sim, err := e.similarity(ctx, topics)
	if err != nil {
		return Result{}, err
	}
	groups := components(sim, e.opts.Threshold)

	ranks := scoreTopics(topics, groups, e.opts.HalfLife)
	rankings := make(map[int64]model.Ranking, len(topics))
	clusters := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		c := Cluster{ID: topics[g[0]].ID, Best: -1}
		for _, idx := range g {
			t := &topics[idx]
			r := model.Ranking{
				ClusterID: c.ID,
				RankScore: ranks[idx],
				Eligible:  t.Score >= minScore,
				RankedAt:  now,
			}
			t.Apply(r)
			rankings[t.ID] = r
			c.TopicIDs = append(c.TopicIDs, t.ID)
			if r.Eligible && r.RankScore > c.Best {
				c.Best = r.RankScore
			}
		}
		clusters = append(clusters, c)
	}

	if err := e.store.ApplyRankings(rankings); err != nil {
		return Result{}, fmt.Errorf("store rankings: %w", err)
	}

	sortTopics(topics)
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Best != clusters[j].Best {
			return clusters[i].Best > clusters[j].Best
		}
		return clusters[i].ID < clusters[j].ID
	})

	e.opts.Metrics.RankingPass(time.Since(start), len(clusters))
	e.opts.Journal.Info(logging.ComponentRanking, "ranked topics", map[string]any{
		"topics":   len(topics),
		"clusters": len(clusters),
	})
	return Result{Topics: topics, Clusters: clusters}, nil
}

// TopCluster ranks the window and returns up to MaxClusterTopics eligible topics of the
// best cluster, best first. An empty slice means nothing is eligible.
func (e *Engine) TopCluster(ctx context.Context) ([]model.Topic, error) {
	return e.TopClusterWithMin(ctx, e.opts.MinScore())
}

func (e *Engine) TopClusterWithMin(ctx context.Context, minScore float64) ([]model.Topic, error) {
	res, err := e.RankWithMin(ctx, minScore)
	if err != nil {
		return nil, err
	}
	if len(res.Clusters) == 0 || res.Clusters[0].Best < 0 {
		return nil, nil
	}
	best := res.Clusters[0].ID
	var out []model.Topic
	for _, t := range res.Topics {
		if t.ClusterID != nil && *t.ClusterID == best && t.Eligible {
			out = append(out, t)
			if len(out) == MaxClusterTopics {
				break
			}
		}
	}
	return out, nil
}

func (e *Engine) similarity(ctx context.Context, topics []model.Topic) ([][]float64, error) {
	texts := make([]string, len(topics))
	for i, t := range topics {
		texts[i] = t.Title + " " + t.Content
	}
	sim, err := e.opts.Similarity.Pairwise(ctx, texts)
	if err == nil {
		return sim, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.opts.Journal.Warn(logging.ComponentRanking, "similarity failed, using fallback", map[string]any{
		"similarity": e.opts.Similarity.Name(),
		"fallback":   e.opts.Fallback.Name(),
		"error":      err.Error(),
	})
	sim, err = e.opts.Fallback.Pairwise(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("similarity: %w", err)
	}
	return sim, nil
}

// scoreTopics computes the rank of each topic. Recency is measured from the newest topic
// of the snapshot, not the wall clock, so scores only depend on the snapshot.
func scoreTopics(topics []model.Topic, groups [][]int, halfLife time.Duration) []float64 {
	maxScore := make(map[model.Source]float64)
	maxEng := make(map[model.Source]float64)
	var newest time.Time
	for _, t := range topics {
		maxScore[t.Source] = math.Max(maxScore[t.Source], logScale(t.Score))
		maxEng[t.Source] = math.Max(maxEng[t.Source], logScale(float64(t.Engagement)))
		if t.FetchedAt.After(newest) {
			newest = t.FetchedAt
		}
	}

	corroboration := make([]float64, len(topics))
	for _, g := range groups {
		c := 1 - 1/float64(len(g))
		for _, idx := range g {
			corroboration[idx] = c
		}
	}

	out := make([]float64, len(topics))
	for i, t := range topics {
		age := newest.Sub(t.FetchedAt)
		if age < 0 {
			age = 0
		}
		recency := math.Pow(0.5, age.Hours()/halfLife.Hours())
		out[i] = weightScore*normalize(logScale(t.Score), maxScore[t.Source]) +
			weightEngagement*normalize(logScale(float64(t.Engagement)), maxEng[t.Source]) +
			weightRecency*recency +
			weightCorroboration*corroboration[i]
	}
	return out
}

func logScale(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Log1p(v)
}

func normalize(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return v / max
}

// sortTopics orders by rank desc, then earliest fetched, then id.
func sortTopics(topics []model.Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		a, b := topics[i], topics[j]
		ra, rb := rankOf(a), rankOf(b)
		if ra != rb {
			return ra > rb
		}
		if !a.FetchedAt.Equal(b.FetchedAt) {
			return a.FetchedAt.Before(b.FetchedAt)
		}
		return a.ID < b.ID
	})
}

func rankOf(t model.Topic) float64 {
	if t.RankScore == nil {
		return -1
	}
	return *t.RankScore
}
