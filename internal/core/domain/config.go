package domain

import (
	"fmt"
	"time"
)

// Config holds every tunable of the storage layer.
type Config struct {
	Store        StoreConfig        `toml:"store"`
	Indices      IndicesConfig      `toml:"indices"`
	Bulk         BulkConfig         `toml:"bulk"`
	Redaction    RedactionConfig    `toml:"redaction"`
	Correlations CorrelationsConfig `toml:"correlations"`
	Transaction  TransactionConfig  `toml:"transaction"`
	Scan         ScanConfig         `toml:"scan"`
	IndexCache   IndexCacheConfig   `toml:"index_cache"`
	DeadLetter   DeadLetterConfig   `toml:"dead_letter"`
}

// StoreConfig locates the document store.
type StoreConfig struct {
	// Path is the data directory. Empty means ~/.crashstore/data.
	Path string `toml:"path"`
}

// IndicesConfig configures index naming and creation.
type IndicesConfig struct {
	// CrashTemplate is a strftime template applied to date_processed.
	CrashTemplate string `toml:"crash_template"`
	CrashDocType  string `toml:"crash_doctype"`
	// CrashSettings is a JSON settings file. Empty uses the built-in one.
	CrashSettings string `toml:"crash_settings"`

	CorrelationsTemplate string `toml:"correlations_template"`
	CorrelationsDocType  string `toml:"correlations_doctype"`
	CorrelationsSettings string `toml:"correlations_settings"`
}

// BulkConfig configures the bulk write path.
type BulkConfig struct {
	// ItemsPerBulkLoad is the number of crashes that triggers a flush.
	ItemsPerBulkLoad int `toml:"items_per_bulk_load"`

	// MaximumQueueSize bounds the queue; producers block when it is full.
	MaximumQueueSize int `toml:"maximum_queue_size"`

	// FlushInterval flushes a partial batch after this much idle time.
	// Zero flushes only on size or on close.
	FlushInterval Duration `toml:"flush_interval"`
}

// RedactionConfig configures the redacting write paths.
type RedactionConfig struct {
	Enabled       bool     `toml:"enabled"`
	ForbiddenKeys []string `toml:"forbidden_keys"`
}

// CorrelationsConfig configures the aggregate write path.
type CorrelationsConfig struct {
	RecognizedPlatforms []string `toml:"recognized_platforms"`
}

// TransactionConfig configures the retrying transaction executor.
type TransactionConfig struct {
	// BackoffDelays are waited between attempts; their count bounds retries.
	BackoffDelays []Duration `toml:"backoff_delays"`

	// RetriesPerSecond caps retries across all callers of one executor.
	RetriesPerSecond float64 `toml:"retries_per_second"`
	RetryBurst       int     `toml:"retry_burst"`
}

// ScanConfig configures scroll reads.
type ScanConfig struct {
	PageSize  int      `toml:"page_size"`
	KeepAlive Duration `toml:"keep_alive"`
}

// IndexCacheConfig selects the index cache backend.
type IndexCacheConfig struct {
	// RedisAddr shares the cache through Redis. Empty keeps it in-process.
	RedisAddr string `toml:"redis_addr"`
	RedisKey  string `toml:"redis_key"`
}

// DeadLetterConfig configures where failed bulk batches are published.
type DeadLetterConfig struct {
	// AMQPURL enables the AMQP dead-letter sink when set.
	AMQPURL    string `toml:"amqp_url"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`

	// Queue is bound to Exchange with RoutingKey and holds batches until
	// they are replayed.
	Queue string `toml:"queue"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		Indices: IndicesConfig{
			CrashTemplate:        "socorro%Y%W",
			CrashDocType:         "crash_reports",
			CorrelationsTemplate: "socorro_correlations_%Y%m",
			CorrelationsDocType:  "correlations",
		},
		Bulk: BulkConfig{
			ItemsPerBulkLoad: 500,
			MaximumQueueSize: 512,
		},
		Redaction: RedactionConfig{
			ForbiddenKeys: append([]string(nil), DefaultForbiddenKeys...),
		},
		Correlations: CorrelationsConfig{
			RecognizedPlatforms: []string{"Windows NT", "Linux", "Mac OS X"},
		},
		Transaction: TransactionConfig{
			BackoffDelays: []Duration{
				Duration(time.Second),
				Duration(5 * time.Second),
				Duration(10 * time.Second),
			},
			RetriesPerSecond: 5,
			RetryBurst:       10,
		},
		Scan: ScanConfig{
			PageSize:  500,
			KeepAlive: Duration(time.Minute),
		},
		IndexCache: IndexCacheConfig{
			RedisKey: "crashstore:indices",
		},
		DeadLetter: DeadLetterConfig{
			Exchange:   "crashstore.deadletter",
			RoutingKey: "bulk",
			Queue:      "crashstore.deadletter.bulk",
		},
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.Indices.CrashTemplate == "":
		return fmt.Errorf("%w: indices.crash_template is empty", ErrInvalidInput)
	case c.Indices.CorrelationsTemplate == "":
		return fmt.Errorf("%w: indices.correlations_template is empty", ErrInvalidInput)
	case c.Bulk.ItemsPerBulkLoad <= 0:
		return fmt.Errorf("%w: bulk.items_per_bulk_load must be positive", ErrInvalidInput)
	case c.Bulk.MaximumQueueSize <= 0:
		return fmt.Errorf("%w: bulk.maximum_queue_size must be positive", ErrInvalidInput)
	case c.Scan.PageSize <= 0:
		return fmt.Errorf("%w: scan.page_size must be positive", ErrInvalidInput)
	}
	return nil
}

// Duration is a time.Duration read from strings such as "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
