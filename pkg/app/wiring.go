// Package app wires the pipeline's dependencies once, shared by the
// server and CLI entrypoints.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tessera-intel/tessera/pkg/assembly"
	"github.com/tessera-intel/tessera/pkg/centroid"
	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/connectivity"
	"github.com/tessera-intel/tessera/pkg/database"
	"github.com/tessera-intel/tessera/pkg/enrich"
	"github.com/tessera-intel/tessera/pkg/filter"
	"github.com/tessera-intel/tessera/pkg/graph"
	"github.com/tessera-intel/tessera/pkg/llm"
	"github.com/tessera-intel/tessera/pkg/narrative"
	"github.com/tessera-intel/tessera/pkg/pipeline"
	"github.com/tessera-intel/tessera/pkg/store"
)

// App is the fully wired dependency graph.
type App struct {
	Config *config.Config
	DB     *database.Client
	Graph  *graph.Index

	Titles       *store.TitleStore
	EFs          *store.EventFamilyStore
	CTMs         *store.CTMStore
	Epics        *store.EpicStore
	Connectivity *store.ConnectivityStore
	Narratives   *store.NarrativeStore
	Centroids    *store.CentroidStore

	LLM       *llm.Client
	Matcher   *centroid.Matcher
	Extractor *narrative.Extractor
	Stages    *pipeline.Stages
}

// New builds everything: database (with migrations), graph connection,
// stores, the LLM client, centroid config sync, and the stage drivers. A
// fatal dependency problem here exits the process before any work starts.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	graphIndex, err := graph.NewIndex(ctx, cfg.Graph)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("graph: %w", err)
	}

	pool := db.Pool()
	titles := store.NewTitleStore(pool)
	efs := store.NewEventFamilyStore(pool)
	ctms := store.NewCTMStore(pool)
	epics := store.NewEpicStore(pool, efs)
	conn := store.NewConnectivityStore(pool)
	narratives := store.NewNarrativeStore(pool)
	centroids := store.NewCentroidStore(pool)
	checkpointMirror := store.NewCheckpointStore(pool)

	centroidList, err := config.LoadCentroids(cfg.CentroidFile)
	if err != nil {
		return nil, fmt.Errorf("centroid config: %w", err)
	}
	if err := centroids.Sync(ctx, centroidList); err != nil {
		return nil, fmt.Errorf("centroid sync: %w", err)
	}

	llmClient := llm.NewClient(cfg.LLM, logger)
	matcher := centroid.NewMatcher(centroidList)
	extractor := narrative.NewExtractor(cfg.Narrative, llmClient, narratives, logger)

	checkpoints, err := pipeline.NewCheckpointManager(cfg.Runner.CheckpointDir, checkpointMirror, logger)
	if err != nil {
		return nil, fmt.Errorf("checkpoints: %w", err)
	}
	runner := pipeline.NewRunner(cfg.Runner, checkpoints, logger)

	stages := &pipeline.Stages{
		Titles: titles,
		EFs:    efs,
		CTMs:   ctms,
		Epics:  epics,
		Graph:  graphIndex,
		Filter: filter.New(cfg.Filter, graphIndex, logger),
		Refresher: connectivity.NewRefresher(
			cfg.Connectivity, graphIndex, titles, conn, logger),
		Assembler: assembly.New(
			cfg.Assembly, titles, efs, conn, llmClient, extractor, logger),
		Enricher: enrich.NewProcessor(
			cfg.Enrichment, efs, titles, ctms, matcher, llmClient, logger),
		Extractor:    extractor,
		Runner:       runner,
		Logger:       logger,
		NarrativeCfg: cfg.Narrative,
	}

	return &App{
		Config:       cfg,
		DB:           db,
		Graph:        graphIndex,
		Titles:       titles,
		EFs:          efs,
		CTMs:         ctms,
		Epics:        epics,
		Connectivity: conn,
		Narratives:   narratives,
		Centroids:    centroids,
		LLM:          llmClient,
		Matcher:      matcher,
		Extractor:    extractor,
		Stages:       stages,
	}, nil
}

// Close releases external connections.
func (a *App) Close(ctx context.Context) {
	if a.Graph != nil {
		_ = a.Graph.Close(ctx)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
