// Package cmd provides the CLI command structure for agentcore: the
// orchestration surface human operators use to create, drive, and review
// agent sessions while the engine runs in-process.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kilnhq/agentcore/internal/agentmgr"
	appconfig "github.com/kilnhq/agentcore/internal/config"
	"github.com/kilnhq/agentcore/internal/engine"
	"github.com/kilnhq/agentcore/internal/event"
	"github.com/kilnhq/agentcore/internal/journal"
	"github.com/kilnhq/agentcore/internal/lockarbiter"
	"github.com/kilnhq/agentcore/internal/logging"
	"github.com/kilnhq/agentcore/internal/modelclient"
	"github.com/kilnhq/agentcore/internal/store"
	"github.com/kilnhq/agentcore/internal/tools"
)

var rootCmd = &cobra.Command{
	Use:   "agentcore",
	Short: "Coordination layer for IDE-embedded autonomous code-editing agents",
	Long: `agentcore manages the lifecycle, file locking, and snapshot journal
for one or more autonomous code-editing agent sessions running against
local project checkouts.`,
}

// app bundles the wired components a command needs. Built once in
// PersistentPreRunE and stored in the package-level current.
type app struct {
	store   *store.Store
	bus     *event.Bus
	locks   *lockarbiter.Arbiter
	journal *journal.Journal
	tools   *tools.Registry
	engine  *engine.Engine
	mgr     *agentmgr.Manager
	log     *logging.Logger
}

var current *app

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/agentcore/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		current = a
		return nil
	}

	registerAgentCommands(rootCmd)
	registerProjectCommands(rootCmd)
}

func initConfig() {
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath("$HOME/.config/agentcore")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AGENTCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}

// buildApp wires the core components together from the loaded config,
// rebuilt once per CLI invocation against the shared on-disk store.
func buildApp() (*app, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.NewLogger("", logging.ParseLevel(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	s, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := event.NewBus()
	locks := lockarbiter.New(s, bus, lockarbiter.Options{
		DefaultTTL:    cfg.Locks.DefaultTTL(),
		CommonPathTTL: cfg.Locks.CommonPathTTL(),
		CommonPathMatcher: func(path string) bool {
			return cfg.Locks.IsCommonPath(path)
		},
	})
	j := journal.New(s)
	registry := tools.NewRegistry()
	mgr := agentmgr.New(s, bus, j)

	// No production model-streaming client ships in this module; the CLI
	// drives the same fake used in tests so `agentcore agent start` is
	// runnable end to end without network access.
	model := &modelclient.Fake{}
	eng := engine.New(s, locks, j, bus, registry, model, mgr, log, engine.Options{
		MaxConcurrentSessions: cfg.Engine.Pool(),
		MaxSteps:              cfg.Engine.MaxSteps,
	})
	mgr.SetRunner(eng)

	return &app{store: s, bus: bus, locks: locks, journal: j, tools: registry, engine: eng, mgr: mgr, log: log}, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
