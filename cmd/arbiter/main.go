// Command arbiter runs the match arbiter: a single process that accepts one
// supervisor connection and up to two bot connections, proxies each bot's
// traffic to its own engine subprocess, and reports a JSON match result back
// to the supervisor when the game ends.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sc2arena/matcharbiter/config"
	"github.com/sc2arena/matcharbiter/internal/acceptor"
	"github.com/sc2arena/matcharbiter/internal/controller"
	"github.com/sc2arena/matcharbiter/internal/paths"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SC2_PROXY")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Run the StarCraft II match arbiter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "", "address to listen on (default 127.0.0.1:8642)")
	flags.String("engine-base-dir", "", "engine installation base directory (overrides autodetection)")
	flags.Duration("tick-interval", 0, "Controller poll interval (default 100ms)")
	flags.Bool("verbose", false, "enable debug-level logging")
	v.BindPFlag("listen", flags.Lookup("listen"))
	v.BindPFlag("engine-base-dir", flags.Lookup("engine-base-dir"))
	v.BindPFlag("tick-interval", flags.Lookup("tick-interval"))
	v.BindPFlag("verbose", flags.Lookup("verbose"))

	return cmd
}

func run(v *viper.Viper) error {
	log, err := newLogger(v.GetBool("verbose"))
	if err != nil {
		return err
	}
	defer log.Sync()

	srvCfg := config.LoadServerConfig(v)
	if srvCfg.EngineBaseDir != "" {
		os.Setenv("SC2ARENA_BASE_DIR", srvCfg.EngineBaseDir)
	}

	acc, err := acceptor.New(srvCfg.ListenAddr, log)
	if err != nil {
		return err
	}
	go acc.Serve()
	defer acc.Close()

	ctl := controller.New(acc.Out(), srvCfg.TickInterval, paths.BaseDir(), log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("arbiter listening", zap.String("addr", srvCfg.ListenAddr))
	ctl.Run(ctx)
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
