// Package cli is the crashstore command line.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// version is set at build time.
var version = "dev"

// Services holds what the commands run against.
type Services struct {
	Config             domain.Config
	Storage            driving.CrashStorage
	Source             driving.CrashSource
	CoreCounts         driving.CorrelationsStorage
	InterestingModules driving.CorrelationsStorage

	// Replayer is nil when no dead-letter broker is configured.
	Replayer driving.DeadLetterReplayer

	NewBulk func(ctx context.Context) (driving.BulkCrashStorage, error)
	Indices func(ctx context.Context) ([]string, error)
	Close   func() error
}

// Factory builds the services from the configuration file at path.
type Factory func(ctx context.Context, path string) (*Services, error)

// servicesFactory is set by SetFactory.
var servicesFactory Factory

// SetFactory sets how commands obtain their services.
func SetFactory(f Factory) {
	servicesFactory = f
}

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "crashstore",
	Short: "Store and query crash reports",
	Long: `crashstore saves processed crash reports into time-partitioned indices,
lists the crashes processed on a day and records correlation summaries.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.crashstore/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// openServices builds the services for the current invocation.
func openServices(ctx context.Context) (*Services, error) {
	if servicesFactory == nil {
		return nil, errors.New("services not configured")
	}
	return servicesFactory(ctx, configPath)
}

// closeServices closes svc, reporting a failure on stderr.
func closeServices(cmd *cobra.Command, svc *Services) {
	if svc.Close == nil {
		return
	}
	if err := svc.Close(); err != nil {
		logger.Error("closing services: %v", err)
		cmd.PrintErrf("warning: %v\n", err)
	}
}
