package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/relay/internal/agent"
	"github.com/fyrsmithlabs/relay/internal/alias"
	"github.com/fyrsmithlabs/relay/internal/config"
	"github.com/fyrsmithlabs/relay/internal/journal"
	"github.com/fyrsmithlabs/relay/internal/logging"
	"github.com/fyrsmithlabs/relay/internal/orchestrator"
	"github.com/fyrsmithlabs/relay/internal/prompt"
	"github.com/fyrsmithlabs/relay/internal/secrets"
	"github.com/fyrsmithlabs/relay/internal/session"
	"github.com/fyrsmithlabs/relay/internal/telemetry"
)

// app bundles the long-lived components shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	journal   *journal.Store
	resolver  *alias.Resolver
}

type sessionOptions struct {
	autonomous bool
	resume     bool

	// progress receives agent and iteration progress lines. Nil discards them.
	progress io.Writer
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newApp wires logging, telemetry, the journal and the alias resolver.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	if cfg.Telemetry.Enabled {
		logger = logger.WithOTel(cfg.Telemetry.ServiceName, global.GetLoggerProvider())
	}
	tel := telemetry.New(ctx, cfg.Telemetry, version, logger)

	store, err := journal.Open(ctx, cfg.Journal.Path, logger)
	if err != nil {
		_ = tel.Shutdown(ctx)
		_ = logger.Sync()
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		journal:   store,
		resolver: alias.NewResolver(
			cfg.Projects.Dirs,
			cfg.Projects.Frameworks,
			cfg.Projects.AliasGroups,
			cfg.UseCases.AliasGroups,
		),
	}, nil
}

// newEngine builds the agent, orchestrator and session engine for one session.
func (a *app) newEngine(ctx context.Context, opts sessionOptions) (*session.Engine, error) {
	systemPrompt, err := prompt.Render(a.cfg.Paths.SystemPromptFile, prompt.NewData(a.cfg, a.resolver))
	if err != nil {
		return nil, err
	}

	vocab, err := orchestrator.NewVocabulary(a.cfg.Vocabulary)
	if err != nil {
		return nil, err
	}

	model, err := agent.NewOpenAIModel(a.cfg.Agent)
	if err != nil {
		return nil, err
	}

	scrubber, err := secrets.New(secrets.Config{
		Enabled:   a.cfg.Secrets.Enabled,
		Redaction: a.cfg.Secrets.Redaction,
		AllowList: a.cfg.Secrets.AllowList,
	})
	if err != nil {
		return nil, err
	}

	registry, err := agent.NewRegistry(agent.DefaultTools(a.resolver, a.cfg.Agent.MaxFileChars,
		agent.WithRedactor(scrubber),
		agent.WithDocsDir(a.cfg.Paths.DocsDir),
	)...)
	if err != nil {
		return nil, err
	}

	var agentOpts []agent.Option
	if opts.progress != nil {
		agentOpts = append(agentOpts, agent.WithObserver(agent.NewPrinter(opts.progress)))
	}
	ag, err := agent.New(model, registry, agent.Config{
		SystemPrompt:      systemPrompt,
		Temperature:       a.cfg.Agent.Temperature,
		MaxExecutionTime:  a.cfg.Agent.MaxExecutionTime.Duration(),
		RequestsPerSecond: a.cfg.Agent.RequestsPerSecond,
	}, a.logger, agentOpts...)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	orch, err := orchestrator.New(ag, a.journal.ForSession(sessionID), orchestrator.Config{
		IterationBudget: a.cfg.Agent.MaxIterations,
		Vocabulary:      vocab,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	if opts.progress != nil {
		w := opts.progress
		orch.OnProgress(func(p orchestrator.IterationProgress) {
			fmt.Fprintf(w, "[relay] iteration %d/%d", p.Iteration, p.Budget)
			if p.Done {
				fmt.Fprintf(w, " (stopped: %s)", p.Reason)
			}
			fmt.Fprintln(w)
		})
	}

	var seed orchestrator.ContextFields
	if opts.resume {
		fields, ok, err := a.journal.LatestFields(ctx)
		if err != nil {
			return nil, fmt.Errorf("resuming context: %w", err)
		}
		if ok {
			seed = fields
			a.logger.Info(ctx, "resumed task context", zap.Strings("fields", fieldNames(fields)))
		}
	}

	return session.NewEngine(orch, a.journal, session.Config{
		SessionID:  sessionID,
		Autonomous: opts.autonomous,
		Seed:       seed,
	}, a.logger)
}

// Close flushes telemetry and releases the journal and log destination.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.journal.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.logger.Sync(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func fieldNames(f orchestrator.ContextFields) []string {
	keys := f.Established()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
