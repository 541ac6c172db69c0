package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Hipson47/Worm/internal/classifier"
	"github.com/Hipson47/Worm/internal/config"
	"github.com/Hipson47/Worm/internal/knowledge"
	"github.com/Hipson47/Worm/internal/llm"
	"github.com/Hipson47/Worm/internal/logging"
	"github.com/Hipson47/Worm/internal/orchestrator"
	"github.com/Hipson47/Worm/internal/planner"
	"github.com/Hipson47/Worm/internal/rules"
	"github.com/Hipson47/Worm/internal/selector"
)

// app holds the wired component graph for one wormd process.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	orch      *orchestrator.Orchestrator
	refresher *knowledge.Refresher
}

// buildApp loads configuration and wires every component. The refresher is
// constructed but not started; callers decide whether to run it.
func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	embedder, err := knowledge.NewEmbedder(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	index, err := knowledge.NewIndex(knowledge.IndexConfig{
		Path:       cfg.Knowledge.Path,
		Collection: cfg.Knowledge.Collection,
		Chunker: knowledge.ChunkerConfig{
			Size:    cfg.Knowledge.ChunkSize,
			Overlap: cfg.Knowledge.Overlap,
		},
	}, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("init knowledge index: %w", err)
	}

	retriever := knowledge.NewRetriever(index, cfg.Retrieval.K, logger)

	var refresher *knowledge.Refresher
	if cfg.Knowledge.Dir != "" {
		source, err := knowledge.NewFSSource(cfg.Knowledge.Dir, cfg.Knowledge.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("init knowledge source: %w", err)
		}
		refresher = knowledge.NewRefresher(index, source, knowledge.RefresherConfig{
			Interval: cfg.Knowledge.RefreshInterval.Duration(),
		}, logger)
	}

	health := &llm.Health{}
	backend, err := llm.New(cfg.Backend, health)
	if err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}

	catalog, err := rules.LoadFile(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("load rule catalog: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Catalog:    catalog,
		RulesPath:  cfg.Rules.Path,
		Classifier: classifier.New(backend, logger),
		Selector: selector.New(backend, retriever, selector.Config{
			Threshold:     cfg.Selection.Threshold,
			MaxAdjustment: cfg.Selection.MaxAdjustment,
		}, logger),
		Planner:   planner.New(planConfig(cfg.Plan), logger),
		Retriever: retriever,
		Index:     index,
		Refresher: refresher,
		Backend:   backend,
		Health:    health,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	return &app{cfg: cfg, logger: logger, orch: orch, refresher: refresher}, nil
}

// planConfig converts the string-keyed configuration maps into the typed
// planner configuration. Empty configuration yields the planner defaults.
func planConfig(pc config.PlanConfig) planner.Config {
	if len(pc.Templates) == 0 && len(pc.CategoryStages) == 0 && len(pc.CategoryGates) == 0 {
		return planner.Config{}
	}

	out := planner.DefaultConfig()
	for k, v := range pc.Templates {
		out.Templates[classifier.Complexity(k)] = v
	}
	for k, v := range pc.CategoryStages {
		out.CategoryStages[rules.Category(k)] = v
	}
	for k, v := range pc.CategoryGates {
		out.CategoryGates[rules.Category(k)] = v
	}
	return out
}
