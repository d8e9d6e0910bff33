// Package scheduler drives the fetch and post cadences and the manual triggers
// that share their locks.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"

	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/metrics"
	"auto_linkedin_poster/model"
	"auto_linkedin_poster/ranking"
	"auto_linkedin_poster/sources"
)

const (
	ActionFetch = "fetch"
	ActionPost  = "post"

	dayLayout = "2006-01-02"
)

type Ingestor interface {
	Run(ctx context.Context) (sources.IngestResult, error)
}

// Ranker takes the eligibility threshold from the caller's settings snapshot.
type Ranker interface {
	RankWithMin(ctx context.Context, minScore float64) (ranking.Result, error)
	TopClusterWithMin(ctx context.Context, minScore float64) ([]model.Topic, error)
}

type Generator interface {
	Configured() bool
	GenerateFor(ctx context.Context, topicIDs []int64, trigger model.Trigger) (model.Post, error)
}

type Publisher interface {
	Configured() bool
	Publish(ctx context.Context, id int64, trigger model.Trigger) (model.Post, error)
}

// Store holds the queue head and the per-day auto publish counters.
type Store interface {
	OldestPending() (model.Post, bool, error)
	AutoPublishCount(day string) (int, error)
	IncrAutoPublish(day string) (int, error)
}

// Settings is the live settings source; each cadence subscribes once.
type Settings interface {
	Get() model.Settings
	SetPaused(paused bool) (model.Settings, error)
	Subscribe() <-chan model.Settings
}

type Deps struct {
	Ingestor  Ingestor
	Ranker    Ranker
	Generator Generator
	Publisher Publisher
	Store     Store
	Settings  Settings
}

type Options struct {
	// Unit scales interval settings; time.Second outside tests.
	Unit          time.Duration
	AutoPublish   bool
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	ActionTimeout time.Duration
	Journal       *logging.Journal
	Metrics       *metrics.Metrics
	Logger        logging.Logger
	Now           func() time.Time
}

// action runs against the settings snapshot taken when it was accepted.
type action func(ctx context.Context, runID string, st model.Settings) error

type Scheduler struct {
	deps  Deps
	opts  Options
	locks Locks
	retry retrypolicy.RetryPolicy[model.Post]

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	loops   sync.WaitGroup
	actions sync.WaitGroup
}

func New(deps Deps, opts Options) *Scheduler {
	if opts.Unit <= 0 {
		opts.Unit = time.Second
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.RetryMaxDelay < opts.RetryDelay {
		opts.RetryMaxDelay = 15 * opts.RetryDelay
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		deps: deps,
		opts: opts,
		locks: Locks{
			Fetch: NewActionLock(ActionFetch),
			Post:  NewActionLock(ActionPost),
		},
		ctx:    context.Background(),
		cancel: func() {},
	}
	s.retry = retrypolicy.NewBuilder[model.Post]().
		WithBackoff(opts.RetryDelay, opts.RetryMaxDelay).
		WithMaxRetries(opts.RetryAttempts).
		WithJitterFactor(0.1).
		HandleIf(func(_ model.Post, err error) bool {
			return err != nil && model.KindOf(err) == model.KindUpstreamUnavailable
		}).
		ReturnLastFailure().
		Build()
	return s
}

func (s *Scheduler) Locks() Locks { return s.locks }

// Running reports whether scheduled ticks fire.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return started && !s.deps.Settings.Get().Paused
}

func (s *Scheduler) Pause() (model.Settings, error) {
	st, err := s.deps.Settings.SetPaused(true)
	if err == nil {
		s.opts.Journal.Info(logging.ComponentScheduler, "scheduler paused", nil)
	}
	return st, err
}

func (s *Scheduler) Resume() (model.Settings, error) {
	st, err := s.deps.Settings.SetPaused(false)
	if err == nil {
		s.opts.Journal.Info(logging.ComponentScheduler, "scheduler resumed", nil)
	}
	return st, err
}

// Start launches both cadence loops. The first firing of each cadence happens one
// interval after Start.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	st := s.deps.Settings.Get()
	s.loops.Add(2)
	go s.runLoop(ActionFetch, s.deps.Settings.Subscribe(), model.Settings.FetchEvery, st, s.runFetch)
	go s.runLoop(ActionPost, s.deps.Settings.Subscribe(), model.Settings.PostEvery, st, s.runPost)

	s.opts.Logger.WithFields(logging.Fields{
		"fetch_interval": st.FetchInterval,
		"post_interval":  st.PostInterval,
		"paused":         st.Paused,
	}).Info("scheduler started")
}

// Stop cancels the loops and waits for in-flight actions, manual ones included.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	s.cancel()
	s.mu.Unlock()

	s.loops.Wait()
	s.actions.Wait()
	if wasStarted {
		s.opts.Logger.Info("scheduler stopped")
	}
}

// FetchNow runs ingestion and ranking out of band. It returns once the run is
// accepted; the run itself is detached from ctx.
func (s *Scheduler) FetchNow(ctx context.Context) error {
	return s.trigger(ctx, s.locks.Fetch, s.runFetch)
}

// GenerateNow runs the post action out of band, including auto-publish.
func (s *Scheduler) GenerateNow(ctx context.Context) error {
	return s.trigger(ctx, s.locks.Post, s.runPost)
}

func (s *Scheduler) trigger(ctx context.Context, lock *ActionLock, run action) error {
	if !lock.TryAcquire() {
		s.opts.Metrics.ActionSkipped(lock.Name(), "already_running")
		return model.Errorf(model.KindAlreadyRunning, "%s is already running", lock.Name())
	}
	s.spawn(context.WithoutCancel(ctx), lock, "manual", run, s.deps.Settings.Get())
	return nil
}

// spawn runs an action that already holds lock and releases it when done.
func (s *Scheduler) spawn(ctx context.Context, lock *ActionLock, origin string, run action, st model.Settings) {
	s.actions.Add(1)
	go func() {
		defer s.actions.Done()
		defer lock.Release()

		runID := uuid.NewString()
		actx, cancel := context.WithTimeout(ctx, s.opts.ActionTimeout)
		defer cancel()

		start := s.opts.Now()
		err := run(actx, runID, st)
		s.opts.Metrics.ActionRun(lock.Name(), err)

		fields := logging.Fields{
			"action":   lock.Name(),
			"origin":   origin,
			"run_id":   runID,
			"duration": s.opts.Now().Sub(start).String(),
		}
		if err != nil {
			s.opts.Logger.WithFields(fields).WithError(err).Warn("scheduler action failed")
			return
		}
		s.opts.Logger.WithFields(fields).Debug("scheduler action finished")
	}()
}

type intervalFunc func(model.Settings, time.Duration) time.Duration

// floor keeps a misconfigured interval from spinning the loop.
func (s *Scheduler) floor(d time.Duration) time.Duration {
	if min := 60 * s.opts.Unit; d < min {
		return min
	}
	return d
}

func (s *Scheduler) runLoop(name string, updates <-chan model.Settings, every intervalFunc, st model.Settings, run action) {
	defer s.loops.Done()

	lock := s.lockFor(name)
	interval := s.floor(every(st, s.opts.Unit))
	last := s.opts.Now()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-timer.C:
			last = s.opts.Now()
			timer.Reset(interval)
			s.tick(lock, run)

		case st := <-updates:
			next := s.floor(every(st, s.opts.Unit))
			if next == interval {
				continue
			}
			interval = next
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			wait := last.Add(interval).Sub(s.opts.Now())
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
			s.opts.Logger.WithFields(logging.Fields{
				"action":   name,
				"interval": interval.String(),
				"next_in":  wait.String(),
			}).Info("cadence re-armed")
		}
	}
}

// tick fires one scheduled run unless paused or the action is still in flight.
// Dropped ticks are not replayed. Settings are read once per tick.
func (s *Scheduler) tick(lock *ActionLock, run action) {
	st := s.deps.Settings.Get()
	if st.Paused {
		s.opts.Metrics.ActionSkipped(lock.Name(), "paused")
		return
	}
	if !lock.TryAcquire() {
		s.opts.Metrics.ActionSkipped(lock.Name(), "already_running")
		s.opts.Journal.Warn(logging.ComponentScheduler, "scheduled run skipped, previous run still in flight", map[string]any{
			"action": lock.Name(),
		})
		return
	}
	s.spawn(s.ctx, lock, "scheduled", run, st)
}

func (s *Scheduler) lockFor(action string) *ActionLock {
	if action == ActionFetch {
		return s.locks.Fetch
	}
	return s.locks.Post
}

func (s *Scheduler) runFetch(ctx context.Context, runID string, st model.Settings) error {
	s.opts.Journal.Info(logging.ComponentScheduler, "fetch cycle started", map[string]any{"run_id": runID})

	res, ierr := s.deps.Ingestor.Run(ctx)
	if ierr != nil {
		s.opts.Journal.Warn(logging.ComponentScheduler, "ingestion failed", map[string]any{
			"run_id": runID,
			"error":  ierr.Error(),
		})
	}

	ranked, rerr := s.deps.Ranker.RankWithMin(ctx, st.MinTopicScore)
	if rerr != nil {
		s.opts.Journal.Error(logging.ComponentScheduler, "ranking failed", map[string]any{
			"run_id": runID,
			"error":  rerr.Error(),
		})
		return rerr
	}

	s.opts.Journal.Info(logging.ComponentScheduler, "fetch cycle completed", map[string]any{
		"run_id":   runID,
		"inserted": res.TotalInserted(),
		"ranked":   len(ranked.Topics),
		"clusters": len(ranked.Clusters),
	})
	return ierr
}

func (s *Scheduler) runPost(ctx context.Context, runID string, st model.Settings) error {
	fresh, genErr := s.generate(ctx, runID, st)
	pubErr := s.autoPublish(ctx, runID, st, fresh)
	return errors.Join(genErr, pubErr)
}

// generate returns the post created by this run, or nil when nothing was generated.
func (s *Scheduler) generate(ctx context.Context, runID string, st model.Settings) (*model.Post, error) {
	if !s.deps.Generator.Configured() {
		s.opts.Journal.Warn(logging.ComponentScheduler, "generation skipped, model not configured", map[string]any{"run_id": runID})
		return nil, nil
	}
	topics, err := s.deps.Ranker.TopClusterWithMin(ctx, st.MinTopicScore)
	if err != nil {
		s.opts.Journal.Error(logging.ComponentScheduler, "topic selection failed", map[string]any{
			"run_id": runID,
			"error":  err.Error(),
		})
		return nil, err
	}
	if len(topics) == 0 {
		s.opts.Journal.Info(logging.ComponentScheduler, "no eligible topics for generation", map[string]any{"run_id": runID})
		return nil, nil
	}
	ids := make([]int64, len(topics))
	for i, t := range topics {
		ids[i] = t.ID
	}

	post, err := failsafe.With[model.Post](s.retry).WithContext(ctx).Get(func() (model.Post, error) {
		return s.deps.Generator.GenerateFor(ctx, ids, model.TriggerAuto)
	})
	if err != nil {
		s.opts.Journal.Error(logging.ComponentScheduler, "automatic generation failed", map[string]any{
			"run_id":    runID,
			"topic_ids": ids,
			"error":     err.Error(),
		})
		return nil, err
	}
	s.opts.Journal.Info(logging.ComponentScheduler, "post generated", map[string]any{
		"run_id":    runID,
		"post_id":   post.ID,
		"topic_ids": ids,
	})
	return &post, nil
}

// autoPublish publishes the post generated by this run, or else the oldest queued or
// edited post, unless today's automatic quota is used up. Only successful automatic
// publishes count toward the quota.
func (s *Scheduler) autoPublish(ctx context.Context, runID string, st model.Settings, fresh *model.Post) error {
	if !s.opts.AutoPublish || !s.deps.Publisher.Configured() {
		return nil
	}
	day := s.opts.Now().UTC().Format(dayLayout)
	limit := st.MaxPostsPerDay

	count, err := s.deps.Store.AutoPublishCount(day)
	if err != nil {
		return err
	}
	if count >= limit {
		s.opts.Metrics.ActionSkipped(ActionPost, "daily_cap")
		s.opts.Journal.Info(logging.ComponentScheduler, "daily publish cap reached, skipping auto-publish", map[string]any{
			"run_id": runID,
			"day":    day,
			"count":  count,
			"limit":  limit,
		})
		return nil
	}

	var id int64
	if fresh != nil {
		id = fresh.ID
	} else {
		next, ok, err := s.deps.Store.OldestPending()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		id = next.ID
	}
	out, err := s.deps.Publisher.Publish(ctx, id, model.TriggerAuto)
	if err != nil {
		if model.KindOf(err) == model.KindAlreadyRunning || model.KindOf(err) == model.KindImmutable {
			return nil
		}
		return err
	}
	if out.Status != model.StatusPosted {
		return nil
	}
	if _, err := s.deps.Store.IncrAutoPublish(day); err != nil {
		return err
	}
	return nil
}
