package main

import (
	"fmt"
	"time"

	"auto_linkedin_poster/config"
	"auto_linkedin_poster/generator"
	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/metrics"
	"auto_linkedin_poster/publisher"
	"auto_linkedin_poster/ranking"
	"auto_linkedin_poster/scheduler"
	"auto_linkedin_poster/settings"
	"auto_linkedin_poster/sources"
	"auto_linkedin_poster/store"
)

// app is the fully wired service graph shared by every subcommand.
type app struct {
	cfg       config.Config
	logger    logging.Logger
	store     *store.Store
	journal   *logging.Journal
	metrics   *metrics.Metrics
	settings  *settings.Service
	catalog   *sources.CatalogHolder
	ingestor  *sources.Ingestor
	ranker    *ranking.Engine
	pipeline  *generator.Pipeline
	publisher *publisher.Publisher
	scheduler *scheduler.Scheduler
}

func newApp(cfg config.Config, logger logging.Logger) (*app, error) {
	st, err := store.Open(store.Config{
		Path:       cfg.DataDir,
		Logger:     logger,
		GCInterval: 10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: st, metrics: metrics.New()}
	a.journal = logging.NewJournal(st, logger)

	a.settings, err = settings.New(st, cfg, a.journal)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a.catalog, err = sources.NewCatalogHolder(cfg.SourcesPath, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load sources catalog: %w", err)
	}
	a.ingestor = sources.NewIngestor(st, a.journal, a.metrics,
		sources.NewReddit(sources.RedditOptions{Config: cfg.Reddit, Catalog: a.catalog}),
		sources.NewX(sources.XOptions{Config: cfg.X, Catalog: a.catalog}),
	)

	a.ranker = ranking.NewEngine(st, ranking.Options{
		Similarity: buildSimilarity(cfg, logger),
		Threshold:  cfg.Ranking.Threshold,
		Window:     time.Duration(cfg.Ranking.WindowHours) * time.Hour,
		HalfLife:   time.Duration(cfg.Ranking.HalfLifeHours * float64(time.Hour)),
		MinScore:   func() float64 { return a.settings.Get().MinTopicScore },
		Journal:    a.journal,
		Metrics:    a.metrics,
	})

	llm, err := buildLLM(cfg)
	if err != nil {
		logger.WithError(err).Warn("generation disabled")
		llm = nil
	}
	a.pipeline = generator.NewPipeline(llm, st, generator.Options{
		Limits: generator.Limits{
			MinLength:    cfg.Post.MinLength,
			TargetLength: cfg.Post.TargetLength,
			MaxLength:    cfg.Post.MaxLength,
		},
		Timeout: time.Duration(cfg.Post.TimeoutSecond) * time.Second,
		Journal: a.journal,
		Metrics: a.metrics,
	})

	a.publisher = publisher.New(publisher.NewLinkedIn(cfg.LinkedIn, "", nil), st, publisher.Options{
		MaxLength: cfg.Post.MaxLength,
		Journal:   a.journal,
		Metrics:   a.metrics,
	})

	a.scheduler = scheduler.New(scheduler.Deps{
		Ingestor:  a.ingestor,
		Ranker:    a.ranker,
		Generator: a.pipeline,
		Publisher: a.publisher,
		Store:     st,
		Settings:  a.settings,
	}, scheduler.Options{
		AutoPublish:   cfg.Scheduler.AutoPublishEnabled(),
		RetryAttempts: cfg.Scheduler.Retries(),
		ActionTimeout: time.Duration(cfg.Scheduler.ActionTimeout) * time.Second,
		Journal:       a.journal,
		Metrics:       a.metrics,
		Logger:        logger,
	})
	return a, nil
}

func (a *app) Close() error {
	a.scheduler.Stop()
	return a.store.Close()
}

func buildLLM(cfg config.Config) (generator.LLMClient, error) {
	if cfg.LLM == nil || cfg.LLM.Provider == "" {
		return nil, fmt.Errorf("llm config missing; set llm.provider/model/api_key in config or OPENAI_API_KEY")
	}
	llmCfg := &generator.LLMSettings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  time.Duration(cfg.Post.TimeoutSecond) * time.Second,
	}
	switch cfg.LLM.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(llmCfg)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if cfg.LLM.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(llmCfg)
	case "mock":
		return &generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

func buildSimilarity(cfg config.Config, logger logging.Logger) ranking.Similarity {
	if cfg.Ranking.Similarity != "embedding" {
		return ranking.Lexical{}
	}
	if cfg.LLM == nil || cfg.LLM.APIKey == "" {
		logger.Warn("embedding similarity needs an llm api key, using lexical")
		return ranking.Lexical{}
	}
	emb, err := ranking.NewEmbedding(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.EmbeddingModel)
	if err != nil {
		logger.WithError(err).Warn("embedding similarity unavailable, using lexical")
		return ranking.Lexical{}
	}
	return emb
}
