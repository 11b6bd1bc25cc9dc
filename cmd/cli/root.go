package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nodepool-project/nodepool/cmd/cli/fetch"
	"github.com/nodepool-project/nodepool/cmd/cli/health"
	versioncmd "github.com/nodepool-project/nodepool/cmd/cli/version"
	"github.com/nodepool-project/nodepool/cmd/util"
	"github.com/nodepool-project/nodepool/pkg/logger"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nodepool",
		Short: "Client for a fleet of redundant discovery nodes",
		Long: `nodepool probes a set of interchangeable discovery nodes, selects the
healthiest one, and issues requests against it with transparent failover.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logtype, set := os.LookupEnv("LOG_TYPE"); set {
				logger.ConfigureLogging(logger.LogMode(strings.ToLower(logtype)))
			}
		},
	}

	viper.SetEnvPrefix("NODEPOOL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	util.AddFleetFlags(rootCmd)
	rootCmd.AddCommand(health.NewCmd())
	rootCmd.AddCommand(fetch.NewCmd())
	rootCmd.AddCommand(versioncmd.NewCmd())
	return rootCmd
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
