package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	crashesDate      string
	crashesProduct   string
	crashesVersions  []string
	crashesProcessed bool
	crashesLimit     int
)

var newCrashesCmd = &cobra.Command{
	Use:   "new-crashes",
	Short: "List crashes processed on a day",
	Long: `Lists the crashes of a product and its versions whose date_processed falls
on the given UTC day. Prints one crash id per line, or with --processed one
processed crash per line as JSON.`,
	Args: cobra.NoArgs,
	RunE: runNewCrashes,
}

func init() {
	newCrashesCmd.Flags().StringVarP(&crashesDate, "date", "d", "", "day to list, YYYY-MM-DD (default today)")
	newCrashesCmd.Flags().StringVarP(&crashesProduct, "product", "p", "", "product name")
	newCrashesCmd.Flags().StringSliceVar(&crashesVersions, "version", nil, "product versions (repeatable)")
	newCrashesCmd.Flags().BoolVar(&crashesProcessed, "processed", false, "print processed crashes instead of ids")
	newCrashesCmd.Flags().IntVarP(&crashesLimit, "limit", "n", 0, "stop after this many crashes (0 for all)")
	rootCmd.AddCommand(newCrashesCmd)
}

func runNewCrashes(cmd *cobra.Command, _ []string) error {
	if crashesProduct == "" {
		return errors.New("--product is required")
	}
	if len(crashesVersions) == 0 {
		return errors.New("at least one --version is required")
	}
	day, err := parseDay(crashesDate)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(cmd, svc)

	if svc.Source == nil {
		return errors.New("crash source not configured")
	}

	count := 0
	if crashesProcessed {
		for processed, err := range svc.Source.NewProcessedCrashes(ctx, day, crashesProduct, crashesVersions) {
			if err != nil {
				return fmt.Errorf("listing crashes: %w", err)
			}
			data, err := json.Marshal(processed)
			if err != nil {
				return fmt.Errorf("failed to marshal crash: %w", err)
			}
			cmd.Println(string(data))
			if count++; crashesLimit > 0 && count >= crashesLimit {
				break
			}
		}
		return nil
	}

	for id, err := range svc.Source.NewCrashes(ctx, day, crashesProduct, crashesVersions) {
		if err != nil {
			return fmt.Errorf("listing crashes: %w", err)
		}
		cmd.Println(id)
		if count++; crashesLimit > 0 && count >= crashesLimit {
			break
		}
	}
	return nil
}

// parseDay parses YYYY-MM-DD as a UTC day. Empty means today.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	day, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return day, nil
}
