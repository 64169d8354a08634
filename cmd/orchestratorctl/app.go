package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaygrid/orchestrator/internal/agent"
	"github.com/relaygrid/orchestrator/internal/agent/providers"
	"github.com/relaygrid/orchestrator/internal/approval"
	"github.com/relaygrid/orchestrator/internal/channels"
	"github.com/relaygrid/orchestrator/internal/channels/discord"
	"github.com/relaygrid/orchestrator/internal/channels/slack"
	"github.com/relaygrid/orchestrator/internal/channels/telegram"
	"github.com/relaygrid/orchestrator/internal/config"
	"github.com/relaygrid/orchestrator/internal/cronsched"
	"github.com/relaygrid/orchestrator/internal/eventlog"
	"github.com/relaygrid/orchestrator/internal/opsruntime"
	"github.com/relaygrid/orchestrator/internal/providers/venice"
	"github.com/relaygrid/orchestrator/internal/router"
	"github.com/relaygrid/orchestrator/internal/secretvault"
	"github.com/relaygrid/orchestrator/internal/skills"
	"github.com/relaygrid/orchestrator/internal/subagents"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
	"github.com/relaygrid/orchestrator/internal/toolregistry/builtin/admin"
	"github.com/relaygrid/orchestrator/internal/toolregistry/builtin/croncall"
	"github.com/relaygrid/orchestrator/internal/toolregistry/builtin/fs"
	"github.com/relaygrid/orchestrator/internal/toolregistry/builtin/shell"
	"github.com/relaygrid/orchestrator/internal/toolregistry/builtin/subagent"
	"github.com/relaygrid/orchestrator/internal/toolregistry/builtin/web"
)

// app bundles every wired component a subcommand might need, built once
// from a loaded Config. The dependency graph is constructed inline rather
// than through a DI container.
type app struct {
	cfg *config.Config

	vault    *secretvault.Vault
	eventLog *eventlog.Log
	sched    *cronsched.Scheduler
	tools    *toolregistry.Registry
	subs     *subagents.Registry
	approval *approval.Service
	router   *router.Router
	ops      *opsruntime.Runtime
	channels *channels.Registry
	skills   *skills.Manager

	workspaceDir string
}

// buildApp loads configuration from path and constructs the full
// component graph, but does not start any background goroutines (the
// scheduler's Start, the channel registry's StartAll) — callers decide
// what to run.
func buildApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	workspaceDir := cfg.Workspace.Path
	if workspaceDir == "" {
		workspaceDir = "."
	}
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	vaultFactory := secretvault.NewFactory()
	vault, err := vaultFactory.Get(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("open secret vault: %w", err)
	}

	store, err := eventlog.NewSQLiteStore(filepath.Join(workspaceDir, "eventlog.db"))
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	evLog := eventlog.NewLog(store)

	leaseDir := filepath.Join(workspaceDir, "cron-leases")
	if err := os.MkdirAll(leaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cron lease dir: %w", err)
	}
	sched, err := cronsched.NewScheduler(leaseDir)
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	if err := registerConfiguredCronJobs(sched, cfg); err != nil {
		return nil, fmt.Errorf("register cron jobs: %w", err)
	}

	tools := toolregistry.NewRegistry()
	registerBuiltinTools(tools, cfg, vault, sched)

	subsRegistry := subagents.NewRegistry(subagents.Deps{}, subagents.Options{
		MaxActive:     4,
		MaxIterations: 12,
		PersistPath:   filepath.Join(workspaceDir, "subagents.json"),
	})
	tools.Register(subagent.New(subsRegistry))

	tools.SetApprovalParser(approval.NewParser())
	approvalSvc := approval.NewService(tools)

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	skillMgr, err := skills.NewManager(&cfg.Skills, workspaceDir, nil)
	if err != nil {
		slog.Warn("skills manager unavailable, continuing without skill recommendations", "error", err)
		skillMgr = nil
	}

	rt := &router.Router{
		Classifier: router.Classifier{},
		Provider:   provider,
		Tools:      tools,
		Secrets:    vault,
		EventLog:   evLog,
		Model:      cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel,
		System:     systemPromptFor(cfg),
	}
	if skillMgr != nil {
		rt.Skills = skillMgr
	}

	ops := opsruntime.New(sched, evLog, prometheus.DefaultRegisterer)
	ops.Resume = router.ResumeAdapter{Router: rt}
	if err := ops.RegisterJobs(); err != nil {
		return nil, fmt.Errorf("register ops runtime jobs: %w", err)
	}

	chanRegistry := channels.NewRegistry()
	registerChannelAdapters(chanRegistry, cfg)

	return &app{
		cfg:          cfg,
		vault:        vault,
		eventLog:     evLog,
		sched:        sched,
		tools:        tools,
		subs:         subsRegistry,
		approval:     approvalSvc,
		router:       rt,
		ops:          ops,
		channels:     chanRegistry,
		skills:       skillMgr,
		workspaceDir: workspaceDir,
	}, nil
}

// systemPromptFor assembles the router's system prompt from identity
// configuration (workspace file loading remains available to tools via
// fs.Config).
func systemPromptFor(cfg *config.Config) string {
	name := cfg.Identity.Name
	if name == "" {
		name = "assistant"
	}
	prompt := fmt.Sprintf("You are %s, a headless orchestration agent.", name)
	if cfg.Identity.Vibe != "" {
		prompt += " " + cfg.Identity.Vibe
	}
	return prompt
}

// buildProvider constructs the primary LLM provider plus its fallback
// chain as an *agent.FailoverOrchestrator, so a failing primary executor
// is retried once against each configured fallback with circuit breaking.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	primaryName := cfg.LLM.DefaultProvider
	if primaryName == "" {
		return nil, fmt.Errorf("llm.default_provider is required")
	}

	primary, err := newProvider(primaryName, cfg)
	if err != nil {
		return nil, err
	}

	orch := agent.NewFailoverOrchestrator(primary, &agent.FailoverConfig{
		MaxRetries:              2,
		RetryBackoff:            500 * time.Millisecond,
		MaxRetryBackoff:         10 * time.Second,
		FailoverOnRateLimit:     true,
		FailoverOnServerError:   true,
		CircuitBreakerThreshold: 5,
	})

	for _, name := range cfg.LLM.FallbackChain {
		fallback, err := newProvider(name, cfg)
		if err != nil {
			slog.Warn("skipping unavailable fallback provider", "provider", name, "error", err)
			continue
		}
		orch.AddProvider(fallback)
	}

	return orch, nil
}

// newProvider constructs one internal/agent/providers adapter by config
// key, matching the provider ids config.LLMConfig.Providers uses.
func newProvider(name string, cfg *config.Config) (agent.LLMProvider, error) {
	pc := cfg.LLM.Providers[name]
	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIProvider(pc.APIKey), nil
	case "bedrock":
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region:       cfg.LLM.Bedrock.Region,
			DefaultModel: pc.DefaultModel,
		})
	case "google":
		return providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
		})
	case "azure":
		return providers.NewAzureOpenAIProvider(providers.AzureOpenAIConfig{
			APIKey:       pc.APIKey,
			Endpoint:     pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "ollama":
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		}), nil
	case "openrouter":
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
		})
	case "chatgpt", "claude":
		return providers.HeadlessFromEnv(name)
	case "venice":
		return venice.NewVeniceProvider(venice.VeniceConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
			BaseURL:      pc.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

// registerBuiltinTools registers every tool component D wires into the
// registry, following each config section's Enabled flag.
func registerBuiltinTools(reg *toolregistry.Registry, cfg *config.Config, vault *secretvault.Vault, sched *cronsched.Scheduler) {
	fsCfg := fs.Config{Workspace: cfg.Workspace.Path, MaxReadBytes: 200_000}
	reg.Register(fs.NewReadTool(fsCfg))
	reg.Register(fs.NewWriteTool(fsCfg))
	reg.Register(fs.NewEditTool(fsCfg))

	shellMgr := shell.NewManager(cfg.Workspace.Path)
	reg.Register(shell.NewExecTool(shellMgr))
	reg.Register(shell.NewProcessTool(shellMgr))

	if cfg.Tools.WebFetch.Enabled {
		reg.Register(web.NewFetchTool(web.FetchConfig{MaxChars: cfg.Tools.WebFetch.MaxChars}))
	}
	if cfg.Tools.WebSearch.Enabled {
		backend := web.BackendDuckDuckGo
		if cfg.Tools.WebSearch.Provider == "searxng" {
			backend = web.BackendSearXNG
		}
		reg.Register(web.NewSearchTool(web.SearchConfig{
			SearXNGURL:         cfg.Tools.WebSearch.URL,
			DefaultBackend:     backend,
			DefaultResultCount: 5,
			CacheTTL:           10 * time.Minute,
		}))
	}
	if cfg.Tools.Browser.Enabled {
		if pool, err := web.NewBrowserPool(web.BrowserPoolConfig{
			MaxInstances: 2,
			Timeout:      30 * time.Second,
			Headless:     cfg.Tools.Browser.Headless,
			RemoteURL:    cfg.Tools.Browser.URL,
		}); err != nil {
			slog.Warn("browser pool unavailable, browser_use tool disabled", "error", err)
		} else {
			reg.Register(web.NewBrowserTool(pool))
		}
	}

	reg.Register(croncall.NewTool(sched, nil))

	decisionLog := admin.NewDecisionLog()
	reg.Register(admin.NewDecisionTool(decisionLog))
	memStore := admin.NewMemoryStore()
	reg.Register(admin.NewMemoryTool(memStore))
	promiseStore := admin.NewPromiseStore()
	reg.Register(admin.NewPromiseTool(sched, promiseStore, nil))
	if runtimeStore, err := admin.NewRuntimeStore(cfg.Workspace.Path, ""); err != nil {
		slog.Warn("runtime admin store unavailable", "error", err)
	} else {
		reg.Register(admin.NewRuntimeAdminTool(runtimeStore))
	}
	reg.Register(admin.NewSecretTool(vault))
}

// registerConfiguredCronJobs installs every enabled job from cfg.Cron.Jobs
// onto sched, translating the config's cron-expression-or-interval
// schedule shape into cronsched's Schedule implementations.
func registerConfiguredCronJobs(sched *cronsched.Scheduler, cfg *config.Config) error {
	if !cfg.Cron.Enabled {
		return nil
	}
	for _, jc := range cfg.Cron.Jobs {
		if !jc.Enabled {
			continue
		}
		schedule, err := scheduleFor(jc)
		if err != nil {
			return fmt.Errorf("job %s: %w", jc.ID, err)
		}
		handler := handlerFor(jc)
		job := cronsched.NewJob(jc.ID, jc.Name, schedule, handler)
		if err := sched.RegisterJob(job); err != nil {
			return fmt.Errorf("register job %s: %w", jc.ID, err)
		}
	}
	return nil
}

func scheduleFor(jc config.CronJobConfig) (cronsched.Schedule, error) {
	if jc.Schedule.Every > 0 {
		return cronsched.NewEverySchedule(jc.Schedule.Every)
	}
	return cronsched.NewCronSchedule(jc.Schedule.Cron, "UTC")
}

// handlerFor returns a no-op placeholder handler for job types this CLI
// does not itself execute (message/webhook delivery happens through the
// router once a channel registry is wired in serveCmd); RegisterJobs still
// needs a non-nil Handler to accept the registration.
func handlerFor(jc config.CronJobConfig) cronsched.Handler {
	return cronsched.HandlerFunc(func(ctx context.Context, job *cronsched.Job) error {
		slog.Info("cron job fired", "id", jc.ID, "type", jc.Type)
		return nil
	})
}

// registerChannelAdapters constructs and registers every enabled channel
// adapter from cfg.Channels.
func registerChannelAdapters(reg *channels.Registry, cfg *config.Config) {
	if cfg.Channels.Slack.Enabled {
		reg.Register(slack.NewAdapter(slack.Config{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
		}))
	}
	if cfg.Channels.Discord.Enabled {
		if adapter, err := discord.NewAdapter(discord.Config{Token: cfg.Channels.Discord.BotToken}); err != nil {
			slog.Warn("discord adapter unavailable", "error", err)
		} else {
			reg.Register(adapter)
		}
	}
	if cfg.Channels.Telegram.Enabled {
		if adapter, err := telegram.NewAdapter(telegram.Config{Token: cfg.Channels.Telegram.BotToken}); err != nil {
			slog.Warn("telegram adapter unavailable", "error", err)
		} else {
			reg.Register(adapter)
		}
	}
}
