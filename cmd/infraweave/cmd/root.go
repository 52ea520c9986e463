package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chiquitav2/infraweave/internal/orchestrator/broker"
	"github.com/chiquitav2/infraweave/internal/orchestrator/cloud"
	"github.com/chiquitav2/infraweave/internal/orchestrator/composer"
	"github.com/chiquitav2/infraweave/internal/orchestrator/config"
	"github.com/chiquitav2/infraweave/internal/orchestrator/eventlog"
	"github.com/chiquitav2/infraweave/internal/orchestrator/processor"
	"github.com/chiquitav2/infraweave/internal/orchestrator/strategy"
	"github.com/chiquitav2/infraweave/internal/orchestrator/uds"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "infraweave",
	Short: "Infrastructure lifecycle orchestrator",
	Long: `infraweave drives infrastructures and their nodes through creation and
teardown: it resolves abstract node descriptions against a definition
catalog, provisions compute through the configured cloud backend, waits for
readiness and rolls back anything a failure leaves behind.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches /etc/infraweave, $HOME/.infraweave, .)")
}

// runtime bundles everything a command needs to execute lifecycle
// operations.
type runtime struct {
	cfg       *config.Config
	log       *logger.Logger
	store     uds.Store
	broker    *broker.InMemory
	composer  *composer.InMemory
	processor *processor.Processor
}

func (r *runtime) close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Error("failed to close user data store", "error", err.Error())
		}
	}
}

// buildRuntime loads configuration and wires the processor to its
// collaborators.
func buildRuntime() (*runtime, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadWithPath(cfgFile)
	} else {
		cfg, err = config.NewLoader().Load()
	}
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:     logger.Level(cfg.Log.Level),
		Format:    logger.Format(cfg.Log.Format),
		Component: "infraweave",
	})

	store, err := uds.NewStore(&uds.Config{
		Path:            cfg.DB.Path,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open user data store: %w", err)
	}

	b := broker.NewInMemory()
	if cfg.Definitions.Path != "" {
		if err := broker.LoadDefinitions(cfg.Definitions.Path, b); err != nil {
			store.Close()
			return nil, err
		}
	}

	handlers := make(map[string]cloud.Handler)
	if cfg.Hetzner.Enabled {
		h, err := cloud.NewHetzner(&cloud.HetznerConfig{
			Token:      cfg.Hetzner.APIToken,
			ServerType: cfg.Hetzner.ServerType,
			Image:      cfg.Hetzner.Image,
			Location:   cfg.Hetzner.Location,
			Labels:     cfg.Hetzner.Labels,
		}, log)
		if err != nil {
			store.Close()
			return nil, err
		}
		handlers["hetzner"] = h
	}

	strat, err := strategy.New(cfg.Processor.Strategy, strategy.Options{
		Workers: cfg.Processor.Workers,
		Logger:  log,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	comp := composer.NewInMemory()
	proc, err := processor.New(processor.Config{
		Composer:             comp,
		Cloud:                cloud.NewDispatcher(handlers),
		UserData:             store,
		Broker:               b,
		Events:               eventlog.NewBus(log),
		Strategy:             strat,
		PollDelay:            cfg.Processor.PollDelay,
		DefaultCreateTimeout: cfg.Processor.DefaultCreateTimeout,
		Logger:               log,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		log:       log,
		store:     store,
		broker:    b,
		composer:  comp,
		processor: proc,
	}, nil
}
