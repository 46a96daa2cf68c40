package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"switchboard/internal/bus"
	"switchboard/internal/capability"
	"switchboard/internal/channel"
	"switchboard/internal/config"
	"switchboard/internal/dispatch"
	"switchboard/internal/domain"
	"switchboard/internal/executor"
	"switchboard/internal/expert"
	"switchboard/internal/ops"
	"switchboard/internal/search"
	"switchboard/internal/store"
	"switchboard/internal/synth"
	"switchboard/internal/trust"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "switchboard",
		Short: "Switchboard: capability routing with trust gating",
		Long: "Switchboard routes user requests to declared capabilities, separates\n" +
			"read-only inference from state-changing action, and audits every decision.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.switchboard/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(dispatchCmd())
	root.AddCommand(capabilityCmd())
	root.AddCommand(allowlistCmd())
	root.AddCommand(auditCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	return cfg
}

func applyLogLevel(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and capability directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			capDir := config.ExpandPath(cfg.Capabilities.Dir)
			if err := os.MkdirAll(capDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "capabilities", capDir)
			return nil
		},
	}
}

// core bundles the wired decision pipeline and its durable store.
type core struct {
	store    *store.SQLiteStore
	registry *capability.Registry
	pipeline *dispatch.Pipeline
	bus      *bus.InMemoryBus
	cfg      *config.Config
}

func (c *core) close() {
	c.bus.Close()
	c.store.Close()
}

// buildCore wires the store, registry, selector, gate, executor, and
// pipeline. confirmFn may be nil (no one-time overrides).
func buildCore(ctx context.Context, cfg *config.Config, confirmFn trust.ConfirmFunc) (*core, error) {
	st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	registry := capability.NewRegistry(cfg.Capabilities.Dir, st, logger)
	registry.RegisterBuiltins(capability.Builtins()...)
	if err := registry.Load(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("capability load: %w", err)
	}

	scorer := expert.NewScorer(logger)
	selector := expert.NewSelector(registry, scorer, cfg.Capabilities.SelectionThreshold, logger)
	gate := trust.NewGate(st, st, cfg.Capabilities.MinActConfidence, logger)

	exec := executor.New(st, time.Duration(cfg.Executor.TimeoutSeconds)*time.Second, logger)
	exec.Register(ops.NewAddItemHandler(st))
	exec.Register(ops.NewRemoveItemHandler(st))
	exec.Register(ops.NewGetListHandler(st))
	exec.Register(ops.NewAddReminderHandler(st))
	exec.Register(ops.NewListRemindersHandler(st))

	var searcher dispatch.Searcher
	if cfg.Fallback.SearchEnabled {
		searcher = search.NewDuckDuckGo()
	}

	messageBus := bus.New(100, logger)

	pipeline := dispatch.New(dispatch.Config{
		Capabilities: registry,
		Selector:     selector,
		Gate:         gate,
		Executor:     exec,
		Synth:        synth.NewTemplate(),
		Searcher:     searcher,
		Audit:        st,
		Confirm:      confirmFn,
		Bus:          messageBus,
		Logger:       logger,
		Concurrency:  cfg.General.MaxConcurrentMessages,
	})

	return &core{
		store:    st,
		registry: registry,
		pipeline: pipeline,
		bus:      messageBus,
		cfg:      cfg,
	}, nil
}

func chatCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			applyLogLevel(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger, UserID: userID})
			confirmFn := func(ctx context.Context, question string) (bool, error) {
				return cliCh.RequestConfirmation(ctx, question)
			}

			c, err := buildCore(ctx, cfg, confirmFn)
			if err != nil {
				return err
			}
			defer c.close()

			if cfg.Capabilities.Watch {
				go func() {
					if err := c.registry.Watch(ctx, logger); err != nil {
						logger.Warn("capability watcher stopped", "err", err)
					}
				}()
			}

			go c.pipeline.Run(ctx)

			return cliCh.Start(ctx, c.bus)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "user ID for this session")
	return cmd
}

func dispatchCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "dispatch [utterance]",
		Short: "Dispatch a single utterance and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			applyLogLevel(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := buildCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer c.close()

			out := c.pipeline.Dispatch(ctx, domain.InboundMessage{
				Channel:   "cli",
				ChatID:    "direct",
				UserID:    userID,
				Content:   args[0],
				Timestamp: time.Now(),
			})
			fmt.Println(out.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "user ID to dispatch as")
	return cmd
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start gateway (all enabled channels + dispatcher)",
		Long:  "Starts all enabled channels and the dispatch pipeline. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var telegramCh *channel.Telegram
	confirmFn := func(ctx2 context.Context, question string) (bool, error) {
		// Route confirmation through Telegram when it can address the user.
		if telegramCh != nil && len(cfg.Channels.Telegram.AllowFrom) > 0 {
			chatID, _ := strconv.ParseInt(cfg.Channels.Telegram.AllowFrom[0], 10, 64)
			if chatID != 0 {
				return telegramCh.RequestConfirmation(ctx2, chatID, question)
			}
		}
		// No channel can prompt; the denial stands.
		return false, nil
	}

	c, err := buildCore(ctx, cfg, confirmFn)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if cfg.Capabilities.Watch {
		go func() {
			if err := c.registry.Watch(ctx, logger); err != nil {
				logger.Warn("capability watcher stopped", "err", err)
			}
		}()
	}

	go c.pipeline.Run(ctx)

	var channels []domain.Channel

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		channels = append(channels, telegramCh)
	}
	if cfg.Channels.Slack.Enabled {
		channels = append(channels, channel.NewSlack(channel.SlackConfig{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
			Logger:   logger,
		}))
	}
	if cfg.Channels.Discord.Enabled {
		channels = append(channels, channel.NewDiscord(channel.DiscordConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		}))
	}

	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled; enable at least one under channels in %s", cfgPath)
	}

	for _, ch := range channels {
		go func(ch domain.Channel) {
			if err := ch.Start(ctx, c.bus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	logger.Info("gateway started", "version", version)

	<-ctx.Done()
	logger.Info("shutting down gateway...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop error", "channel", ch.Name(), "err", err)
			}
		}
		c.bus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func capabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capability",
		Short: "Inspect and manage capabilities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all capabilities with their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx := context.Background()

			c, err := buildCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer c.close()

			for _, d := range c.registry.All() {
				state := "inactive"
				if d.Active {
					state = "active"
				}
				fmt.Printf("%-24s %-8s %-5s %-8s %s\n", d.Name, d.Source, d.OperationKind, state, shortHash(d.IntegrityHash))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Reload capability descriptors from disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx := context.Background()

			c, err := buildCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.registry.Load(ctx); err != nil {
				return err
			}
			fmt.Printf("reloaded %d capabilities (%d active)\n", len(c.registry.All()), len(c.registry.Active()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "approve [name]",
		Short: "Approve a capability's current content hash and activate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx := context.Background()

			c, err := buildCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.registry.Approve(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("approved %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func allowlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Manage per-user action grants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant [user] [kind]",
		Short: "Grant a user standing approval for an operation kind (read|act)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[1])
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Grant(context.Background(), args[0], kind); err != nil {
				return err
			}
			fmt.Printf("granted %s to %s\n", kind, args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke [user] [kind]",
		Short: "Revoke a user's standing approval for an operation kind",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[1])
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Revoke(context.Background(), args[0], kind); err != nil {
				return err
			}
			fmt.Printf("revoked %s from %s\n", kind, args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [user]",
		Short: "List a user's allowlist entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.Entries(context.Background(), args[0])
			if err != nil {
				return err
			}
			for _, e := range entries {
				status := "granted " + e.GrantedAt.Format(time.RFC3339)
				if e.RevokedAt != nil {
					status = "revoked " + e.RevokedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-6s %s\n", e.Kind, status)
			}
			return nil
		},
	})

	return cmd
}

func auditCmd() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "audit [user]",
		Short: "Print a user's audit records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceTime := time.Time{}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since (want RFC3339): %w", err)
				}
				sinceTime = t
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.Query(context.Background(), args[0], sinceTime)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%s %-9s %-10s %-24s %-20s %-10s %s\n",
					r.CreatedAt.Format(time.RFC3339), r.Stage, r.Outcome,
					r.Capability, r.Operation, r.Kind, r.ErrorDetail)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only records at or after this RFC3339 time")
	return cmd
}

func openStore() (*store.SQLiteStore, error) {
	cfg := loadConfig()
	return store.NewSQLiteStore(cfg.Store.DBPath, logger)
}

func parseKind(s string) (domain.OperationKind, error) {
	switch s {
	case "read":
		return domain.KindRead, nil
	case "act":
		return domain.KindAct, nil
	default:
		return "", fmt.Errorf("invalid operation kind %q (want read or act)", s)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
