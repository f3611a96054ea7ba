package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/config"
	"github.com/aretw0/tendril/internal/demo"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tendril",
	Short: "Tendril is a topic based conversation engine",
	Long: `Tendril drives conversations through topics made of activities: messages,
cards, prompts and containers. The bundled assistant prepares car insurance quotes.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default $"+config.EnvConfig+" or "+config.DefaultPath+")")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides the config file)")
}

// app is what every command needs: configuration, a logger and an open store.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	backend *config.Backend
}

func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.Path(path), path != "")
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	logger := logging.NewWriter(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	backend, err := cfg.Store.OpenStore()
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", "type", cfg.Store.Type)
	return &app{cfg: cfg, logger: logger, backend: backend}, nil
}

// engine builds the demo engine over the app's store. hooks are added to
// the logging hooks.
func (a *app) engine(hooks ...domain.LifecycleHooks) (*tendril.Engine, error) {
	catalog, err := demo.Catalog()
	if err != nil {
		return nil, err
	}
	completion, err := a.cfg.OpenCompletion()
	if err != nil {
		return nil, err
	}
	saver, err := a.cfg.OpenSaver()
	if err != nil {
		return nil, err
	}
	if saver == nil {
		saver = demo.LogSaver(a.logger)
	}

	all := append([]domain.LifecycleHooks{logging.Hooks(a.logger)}, hooks...)
	opts := []tendril.Option{
		tendril.WithLogger(a.logger),
		tendril.WithStore(a.backend.Store),
		tendril.WithModelSaver(saver),
		tendril.WithFallbackTopic(a.cfg.FallbackTopic),
		tendril.WithEscalationTopic(a.cfg.EscalationTopic),
		tendril.WithLifecycleHooks(domain.CombineHooks(all...)),
	}
	if a.backend.Locker != nil {
		opts = append(opts, tendril.WithLocker(a.backend.Locker, a.cfg.LockTTL))
	}
	if completion != nil {
		opts = append(opts, tendril.WithCompletionService(completion))
		if a.cfg.LLMRouting {
			opts = append(opts, tendril.WithLLMRouting())
		}
	}
	return tendril.New(catalog, opts...)
}

func (a *app) close() {
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}
