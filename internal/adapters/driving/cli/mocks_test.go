package cli

import (
	"bytes"
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
)

// mockStorage records saved crashes.
type mockStorage struct {
	mu      sync.Mutex
	saved   []*domain.CrashDocument
	failIDs map[string]error
	closed  bool
}

func (m *mockStorage) Save(_ context.Context, doc *domain.CrashDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIDs[doc.CrashID]; err != nil {
		return err
	}
	m.saved = append(m.saved, doc)
	return nil
}

func (m *mockStorage) SaveRawAndProcessed(ctx context.Context, raw, processed map[string]any, id string) error {
	return m.Save(ctx, domain.NewCrashDocument(id, raw, processed))
}

func (m *mockStorage) Close() error {
	m.closed = true
	return nil
}

// mockBulk is a mockStorage with stats.
type mockBulk struct {
	mockStorage
}

func (m *mockBulk) Stats() domain.BulkStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.saved))
	return domain.BulkStats{Enqueued: n, Submitted: n}
}

// mockSource serves fixed ids and processed crashes.
type mockSource struct {
	ids     []string
	err     error
	gotDate time.Time
	gotProd string
	gotVers []string
}

func (m *mockSource) NewCrashes(_ context.Context, date time.Time, product string, versions []string) iter.Seq2[string, error] {
	m.gotDate, m.gotProd, m.gotVers = date, product, versions
	return func(yield func(string, error) bool) {
		if m.err != nil {
			yield("", m.err)
			return
		}
		for _, id := range m.ids {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (m *mockSource) NewProcessedCrashes(ctx context.Context, date time.Time, product string, versions []string) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		for id, err := range m.NewCrashes(ctx, date, product, versions) {
			if !yield(map[string]any{"uuid": id}, err) {
				return
			}
		}
	}
}

// mockCorrelations records stored summaries.
type mockCorrelations struct {
	summaries []map[string]any
	requests  []domain.AggregateRequest
}

func (m *mockCorrelations) Store(_ context.Context, summary map[string]any, req domain.AggregateRequest) error {
	m.summaries = append(m.summaries, summary)
	m.requests = append(m.requests, req)
	return nil
}

// mockReplayer replays a fixed number of batches.
type mockReplayer struct {
	n   int
	err error
}

func (m *mockReplayer) Replay(context.Context) (int, error) {
	return m.n, m.err
}

// testServices are the services handed to commands by setupTestServices.
type testServices struct {
	storage     *mockStorage
	bulk        *mockBulk
	source      *mockSource
	core        *mockCorrelations
	interesting *mockCorrelations
	replayer    *mockReplayer
	indices     []string
	closed      int
	gotPath     string
}

// setupTestServices installs mock services and returns a cleanup function.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		storage:     &mockStorage{},
		bulk:        &mockBulk{},
		source:      &mockSource{ids: []string{"c1", "c2", "c3"}},
		core:        &mockCorrelations{},
		interesting: &mockCorrelations{},
		indices:     []string{"socorro201501", "socorro_correlations_201501"},
	}

	old := servicesFactory
	SetFactory(func(_ context.Context, path string) (*Services, error) {
		ts.gotPath = path
		svc := &Services{
			Config:             domain.DefaultConfig(),
			Storage:            ts.storage,
			Source:             ts.source,
			CoreCounts:         ts.core,
			InterestingModules: ts.interesting,
			NewBulk: func(context.Context) (driving.BulkCrashStorage, error) {
				return ts.bulk, nil
			},
			Indices: func(context.Context) ([]string, error) { return ts.indices, nil },
			Close: func() error {
				ts.closed++
				return nil
			},
		}
		if ts.replayer != nil {
			svc.Replayer = ts.replayer
		}
		return svc, nil
	})

	return ts, func() { servicesFactory = old }
}

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// runCommand executes the root command with args and stdin.
func runCommand(stdin string, args ...string) (string, error) {
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}
