package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"aquos/internal/logger"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	log     = logger.New()
)

var rootCmd = &cobra.Command{
	Use:   "aquos",
	Short: "AQUOS - remote control for Sharp AQUOS televisions",
	Long: `AQUOS drives Sharp AQUOS televisions over their network control service.
It includes an interactive remote, one-shot commands and a hub daemon that
manages several sets behind a REST API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetSilentMode(false)
			logger.SetLevel("debug")
		}
	},
}

// Execute runs the root command; SIGINT and SIGTERM cancel its context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(cliCmd)
	rootCmd.AddCommand(hubCmd)
}
