package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
)

// Correlation summary kinds.
const (
	kindCoreCounts         = "core"
	kindInterestingModules = "interesting"
)

var (
	correlationsKey    string
	correlationsPrefix string
	correlationsName   string
	correlationsKind   string
)

var correlationsCmd = &cobra.Command{
	Use:   "correlations [file]",
	Short: "Store a correlation summary",
	Long: `Stores a correlation summary as one document per platform and signature
in the monthly correlations index. Platforms outside the configured list are
skipped. The summary is read from the file, or from standard input.

Kinds:
  core          platforms at the top level of the summary
  interesting   platforms under "os_counters"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCorrelations,
}

func init() {
	correlationsCmd.Flags().StringVarP(&correlationsKey, "key", "k", "", "product and version, e.g. Firefox_43.0.1")
	correlationsCmd.Flags().StringVar(&correlationsPrefix, "prefix", "", "date prefix of the summary, YYYYMMDD")
	correlationsCmd.Flags().StringVar(&correlationsName, "name", "", "name of the correlation rule")
	correlationsCmd.Flags().StringVar(&correlationsKind, "kind", kindCoreCounts, "summary kind: core or interesting")
	rootCmd.AddCommand(correlationsCmd)
}

func runCorrelations(cmd *cobra.Command, args []string) error {
	date, err := domain.ParseDatePrefix(correlationsPrefix)
	if err != nil {
		return fmt.Errorf("--prefix: %w", err)
	}
	req := domain.AggregateRequest{Key: correlationsKey, Date: date, Name: correlationsName}
	if _, _, err := req.ProductVersion(); err != nil {
		return fmt.Errorf("--key: %w", err)
	}

	summary, err := readSummary(cmd, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(cmd, svc)

	var storage driving.CorrelationsStorage
	switch correlationsKind {
	case kindCoreCounts:
		storage = svc.CoreCounts
	case kindInterestingModules:
		storage = svc.InterestingModules
	default:
		return fmt.Errorf("unknown kind %q: want %s or %s", correlationsKind, kindCoreCounts, kindInterestingModules)
	}
	if storage == nil {
		return errors.New("correlations storage not configured")
	}

	if err := storage.Store(ctx, summary, req); err != nil {
		return fmt.Errorf("storing correlations: %w", err)
	}
	cmd.Printf("Stored %s correlations for %s\n", correlationsKind, correlationsKey)
	return nil
}

func readSummary(cmd *cobra.Command, args []string) (map[string]any, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("opening summary: %w", err)
		}
		defer f.Close()
		r = f
	}

	var summary map[string]any
	if err := json.NewDecoder(r).Decode(&summary); err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	return summary, nil
}
