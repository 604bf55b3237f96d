// Package cli implements dian-cli, the command line client for the DIAN electronic invoicing
// services.
//
// Commands read the DIAN_* environment variables (see app/internal/config/config.go) and only
// check the settings the command needs.
package cli

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/facturae-co/dian-gateway/app/internal/config"
	"github.com/facturae-co/dian-gateway/app/internal/logger"
	"github.com/facturae-co/dian-gateway/app/internal/version"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.DianEnvironment
	appLogger *slog.Logger

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:               "dian-cli",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	Short:             "DIAN electronic invoicing CLI",
	Long: `Command line client for DIAN electronic invoicing: compute CUFEs, build and sign UBL
invoices, and submit, query and download documents at the DIAN web service`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewDianConfig()
		if err != nil {
			log.Printf("failed to load configuration: %v", err.Error())
			return err
		}

		// logs go to stderr so command output can be piped
		appLogger = logger.NewLogger(os.Stderr, logger.ParseLogLevel(logLevel), "dev")
		slog.SetDefault(appLogger)
		return nil
	},
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, none)")

	rootCmd.AddCommand(cufeCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(downloadCmd)
}
