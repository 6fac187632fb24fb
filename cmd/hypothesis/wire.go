package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/agent/core"
	"github.com/biocortex/hypothesis/internal/agent/telemetry"
	"github.com/biocortex/hypothesis/internal/capability"
	"github.com/biocortex/hypothesis/internal/session"
	"github.com/biocortex/hypothesis/internal/store"
	"github.com/biocortex/hypothesis/internal/tools"
)

// agentStack is everything a command needs to run the agent.
type agentStack struct {
	cfg       *config.Config
	orch      *core.Orchestrator
	store     *store.Store
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	cleanup   func(context.Context)
}

// buildAgent assembles the full pipeline from configuration.
func buildAgent(ctx context.Context) (*agentStack, error) {
	cfg := config.LoadConfig(configPath)
	logger := log.New(os.Stdout, "", log.LstdFlags)

	base, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	tel := telemetry.NewTelemetry(cfg.Telemetry)
	llm := core.LLMProvider(core.NewMeteredProvider(base, tel))

	registry, err := capability.NewRegistry(capability.DefaultDescriptors(), []capability.Kind{
		capability.KindGraphQuery,
		capability.KindTabularQuery,
		capability.KindGraphAnalysis,
	})
	if err != nil {
		return nil, fmt.Errorf("capability registry: %w", err)
	}

	toolbox, err := tools.NewToolbox(ctx, cfg, registry, llm, logger)
	if err != nil {
		return nil, err
	}
	cleanups := []func(context.Context){toolbox.Close}

	sessions, sessionCleanup, err := buildSessions(ctx, cfg, logger)
	if err != nil {
		toolbox.Close(ctx)
		return nil, err
	}
	if sessionCleanup != nil {
		cleanups = append(cleanups, sessionCleanup)
	}

	var st *store.Store
	var archive core.TurnArchive
	if cfg.Storage.Enabled {
		dsn, derr := cfg.Storage.Postgres.DSN()
		if derr == nil {
			st, derr = store.New(ctx, dsn)
		}
		if derr != nil {
			for _, c := range cleanups {
				c(ctx)
			}
			return nil, derr
		}
		archive = st
		cleanups = append(cleanups, func(context.Context) { st.Close() })
	}

	routing := cfg.LLM.Routing
	classifier := core.NewModeClassifier(llm, routing.ModelFor("classification"), tel, logger)
	planner := core.NewPlanner(llm, routing.ModelFor("planning"), registry, cfg.Agents.MaxRetries, tel, logger)
	executor := core.NewExecutor(toolbox, registry, llm, routing.ModelFor("planning"), tel, logger)
	synthesizer := core.NewSynthesizer(llm, routing.ModelFor("synthesis"), logger)

	orch := core.NewOrchestrator(core.OrchestratorOptions{
		Classifier:         classifier,
		Planner:            planner,
		Executor:           executor,
		Synthesizer:        synthesizer,
		LLM:                llm,
		ChatModel:          routing.ModelFor("chatting"),
		Sessions:           sessions,
		Archive:            archive,
		Telemetry:          tel,
		Logger:             logger,
		ContextWindow:      cfg.Session.ContextWindow,
		RecallHits:         cfg.Session.RecallHits,
		MaxConcurrentTurns: cfg.Agents.MaxConcurrentTurns,
	})

	return &agentStack{
		cfg:       cfg,
		orch:      orch,
		store:     st,
		telemetry: tel,
		logger:    logger,
		cleanup: func(ctx context.Context) {
			for i := len(cleanups) - 1; i >= 0; i-- {
				cleanups[i](ctx)
			}
		},
	}, nil
}

// buildSessions picks the session backend. The memory backend gets a cron
// janitor for TTL expiry; Redis expires keys itself.
func buildSessions(ctx context.Context, cfg *config.Config, logger *log.Logger) (core.SessionStore, func(context.Context), error) {
	switch cfg.Session.Backend {
	case "redis":
		rs, err := session.NewRedisStore(ctx, cfg.Session.Redis, cfg.Session.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("session backend: %w", err)
		}
		return rs, func(context.Context) { rs.Close() }, nil
	case "", "memory", "inmemory":
		ms := session.NewMemoryStore(cfg.Session.TTL)
		janitor, err := session.NewJanitor(ms, cfg.Session.SweepSchedule, logger)
		if err != nil {
			return nil, nil, err
		}
		janitorCtx, cancel := context.WithCancel(context.Background())
		go janitor.Run(janitorCtx)
		return ms, func(context.Context) { cancel() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}
