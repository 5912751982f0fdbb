package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Resubmit dead-lettered bulk batches",
	Long: `Resubmits the bulk batches the store rejected, as published to the
dead-letter exchange. Stops at the first batch the store rejects again;
that batch stays queued.`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(cmd, svc)

	if svc.Replayer == nil {
		return errors.New("dead-letter broker not configured: set dead_letter.amqp_url")
	}

	n, err := svc.Replayer.Replay(ctx)
	cmd.Printf("Replayed %d batches\n", n)
	if err != nil {
		return fmt.Errorf("replay stopped: %w", err)
	}
	return nil
}
