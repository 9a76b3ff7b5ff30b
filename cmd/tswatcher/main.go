package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tswatcher/internal/bot"
	"tswatcher/internal/bridge"
	"tswatcher/internal/config"
	"tswatcher/internal/monitor"
	"tswatcher/internal/notify"
	"tswatcher/internal/query"
	"tswatcher/internal/storage"
	"tswatcher/internal/store"
)

type runOptions struct {
	configPath string
	debug      bool
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := runOptions{}

	root := &cobra.Command{
		Use:   "tswatcher",
		Short: "TeamSpeak server watcher with Telegram notifications",
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file (env vars work without one)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "verbose logging")

	root.AddCommand(newRunCmd(&opts))
	return root
}

func newRunCmd(opts *runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the watcher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.debug {
				cfg.Debug = true
			}

			logger, err := newLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			return run(ctx, cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return err
	}
	api.Debug = false
	logger.Info("authorized", zap.String("bot", api.Self.UserName))

	files := storage.NewFileStore(cfg.DataPath)
	snap, err := files.Load()
	if err != nil {
		return err
	}

	st := store.New(files, logger)
	st.Restore(snap)
	defer st.Close()

	events := bridge.New()
	manager := monitor.NewManager(st, events, monitor.Options{
		Dial:         query.Dial,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	}, logger)
	defer manager.StopAll()

	dispatcher := notify.NewDispatcher(events, st, notify.NewTelegramSender(api), logger)
	go dispatcher.Run(ctx)

	started := manager.StartAll()
	logger.Info("watches restored", zap.Int("monitors", started))

	h := bot.NewHandlers(api, cfg, st, manager, query.Dial, logger)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			logger.Info("shutting down")
			return nil
		case upd := <-updates:
			if upd.Message == nil {
				continue
			}
			go h.Handle(upd)
		}
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
