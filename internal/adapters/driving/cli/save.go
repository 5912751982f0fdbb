package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
	"github.com/custodia-labs/crashstore/internal/logger"
)

var saveBulk bool

var saveCmd = &cobra.Command{
	Use:   "save [file...]",
	Short: "Save crash documents",
	Long: `Reads crash documents and saves them into their weekly index.

Each document is a JSON object with crash_id, raw_crash and processed_crash.
Files may hold one document or a stream of them; with no file, or "-",
documents are read from standard input.

With --bulk, documents are queued and written in batches.`,
	RunE: runSave,
}

func init() {
	saveCmd.Flags().BoolVar(&saveBulk, "bulk", false, "write in batches through the bulk queue")
	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(cmd, svc)

	storage := svc.Storage
	var bulk driving.BulkCrashStorage
	if saveBulk {
		if svc.NewBulk == nil {
			return errors.New("bulk storage not configured")
		}
		if bulk, err = svc.NewBulk(ctx); err != nil {
			return fmt.Errorf("starting bulk storage: %w", err)
		}
		storage = bulk
	}
	if storage == nil {
		return errors.New("crash storage not configured")
	}

	if len(args) == 0 {
		args = []string{"-"}
	}

	saved, failed := 0, 0
	var readErr error
	for _, name := range args {
		s, f, err := saveFrom(ctx, cmd, storage, name)
		saved += s
		failed += f
		if err != nil {
			readErr = err
			break
		}
	}

	if err := storage.Close(); err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}

	if bulk != nil {
		stats := bulk.Stats()
		cmd.Printf("Queued %d crashes: %d submitted, %d lost in %d failed batches\n",
			stats.Enqueued, stats.Submitted, stats.Failed, stats.FailedBatches)
	} else {
		cmd.Printf("Saved %d crashes\n", saved)
	}

	if readErr != nil {
		return readErr
	}
	if failed > 0 {
		return fmt.Errorf("%d crashes could not be saved", failed)
	}
	return nil
}

// saveFrom saves every document in the named file.
func saveFrom(ctx context.Context, cmd *cobra.Command, storage driving.CrashStorage, name string) (int, int, error) {
	var r io.Reader
	if name == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(name)
		if err != nil {
			return 0, 0, fmt.Errorf("opening %s: %w", name, err)
		}
		defer f.Close()
		r = f
	}

	saved, failed := 0, 0
	dec := json.NewDecoder(r)
	for {
		var doc domain.CrashDocument
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return saved, failed, nil
			}
			return saved, failed, fmt.Errorf("reading %s: %w", name, err)
		}

		if err := storage.Save(ctx, &doc); err != nil {
			if ctx.Err() != nil {
				return saved, failed, err
			}
			logger.Error("saving %s: %v", doc.CrashID, err)
			cmd.PrintErrf("failed to save %s: %v\n", doc.CrashID, err)
			failed++
			continue
		}
		saved++
	}
}
