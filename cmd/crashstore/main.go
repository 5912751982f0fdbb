// Command crashstore stores and queries crash reports.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/custodia-labs/crashstore/internal/adapters/driven/config/file"
	"github.com/custodia-labs/crashstore/internal/adapters/driving/cli"
	"github.com/custodia-labs/crashstore/internal/app"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
)

func main() {
	cli.SetFactory(newServices)

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// newServices loads the configuration at path and wires the application.
func newServices(ctx context.Context, path string) (*cli.Services, error) {
	if path == "" {
		var err error
		if path, err = file.DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := file.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &cli.Services{
		Config:             a.Config,
		Storage:            a.Storage,
		Source:             a.Source,
		CoreCounts:         a.CoreCounts,
		InterestingModules: a.InterestingModules,
		Replayer:           a.Replayer,
		NewBulk: func(ctx context.Context) (driving.BulkCrashStorage, error) {
			return a.NewBulk(ctx)
		},
		Indices: a.Indices,
		Close:   a.Close,
	}, nil
}
