package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var indicesCmd = &cobra.Command{
	Use:   "indices",
	Short: "List created indices",
	Args:  cobra.NoArgs,
	RunE:  runIndices,
}

func init() {
	rootCmd.AddCommand(indicesCmd)
}

func runIndices(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(cmd, svc)

	if svc.Indices == nil {
		return errors.New("index listing not configured")
	}

	names, err := svc.Indices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indices: %w", err)
	}
	if len(names) == 0 {
		cmd.Println("No indices found.")
		return nil
	}
	for _, name := range names {
		cmd.Println(name)
	}
	return nil
}
