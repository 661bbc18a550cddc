// Package recorder persists bus traffic to SQLite for after-the-fact
// inspection of what the vehicle saw and was told to do.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/teslashibe/go-mechros/pkg/bus"
)

// Config holds recorder configuration.
type Config struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Path is the SQLite file. Empty means an in-memory database.
	Path string `mapstructure:"path" json:"path"`

	// FlushInterval is how often buffered messages are written.
	FlushInterval time.Duration `mapstructure:"flush_interval" json:"flush_interval"`

	// BatchSize bounds rows per insert statement.
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`

	// MaxPending bounds buffered messages between flushes; the oldest
	// are dropped first.
	MaxPending int `mapstructure:"max_pending" json:"max_pending"`

	// Topics are the bus topics to record.
	Topics []string `mapstructure:"topics" json:"topics"`
}

// DefaultConfig returns a disabled recorder covering state, status,
// goals and operator commands.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		Path:          "mechros.db",
		FlushInterval: time.Second,
		BatchSize:     200,
		MaxPending:    5000,
		Topics: []string{
			bus.TopicSystemState,
			bus.TopicCommands,
			bus.TopicNavigationGoals,
			bus.TopicRemoteCommands,
		},
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.MaxPending < c.BatchSize {
		return fmt.Errorf("max_pending must be at least batch_size")
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	return nil
}

// Record is one recorded bus message.
type Record struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Topic     string    `gorm:"index;not null" json:"topic"`
	Payload   string    `gorm:"not null" json:"payload"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Stats contains recorder statistics.
type Stats struct {
	Pending int   `json:"pending"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Errors  int64 `json:"errors"`
}

// Recorder buffers bus messages and writes them in batches.
type Recorder struct {
	cfg    Config
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending []Record
	detach  []func()

	written atomic.Int64
	dropped atomic.Int64
	errs    atomic.Int64
}

// Open creates the database and migrates the schema.
func Open(cfg Config, log *slog.Logger) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	dsn := cfg.Path
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        cfg.BatchSize,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// An in-memory database lives only as long as its last connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r := &Recorder{
		cfg:    cfg,
		db:     db,
		logger: log.With("component", "recorder"),
		now:    time.Now,
	}
	r.logger.Info("recorder opened", "path", cfg.Path, "topics", cfg.Topics)
	return r, nil
}

// Attach subscribes to the configured topics on b.
func (r *Recorder) Attach(b *bus.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, topic := range r.cfg.Topics {
		r.detach = append(r.detach, b.Subscribe(topic, r.record))
	}
}

func (r *Recorder) record(topic string, data []byte) {
	rec := Record{Topic: topic, Payload: string(data), CreatedAt: r.now()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) >= r.cfg.MaxPending {
		r.pending = r.pending[1:]
		r.dropped.Add(1)
	}
	r.pending = append(r.pending, rec)
}

// Flush writes everything buffered so far.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(batch, r.cfg.BatchSize).Error; err != nil {
		r.errs.Add(1)
		r.dropped.Add(int64(len(batch)))
		return fmt.Errorf("write %d records: %w", len(batch), err)
	}
	r.written.Add(int64(len(batch)))
	return nil
}

// Run flushes every FlushInterval until ctx is done, then flushes once
// more.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.Flush(context.WithoutCancel(ctx)); err != nil {
				r.logger.Error("final flush failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("flush failed", "error", err)
			}
		}
	}
}

// Recent returns up to n records for topic, newest first. An empty topic
// matches every topic.
func (r *Recorder) Recent(ctx context.Context, topic string, n int) ([]Record, error) {
	var out []Record
	q := r.db.WithContext(ctx).Order("id desc").Limit(n)
	if topic != "" {
		q = q.Where("topic = ?", topic)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns how many records are stored for topic, or in total for
// an empty topic.
func (r *Recorder) Count(ctx context.Context, topic string) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&Record{})
	if topic != "" {
		q = q.Where("topic = ?", topic)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Stats returns recorder statistics.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	pending := len(r.pending)
	r.mu.Unlock()
	return Stats{
		Pending: pending,
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Errors:  r.errs.Load(),
	}
}

// Close detaches from the bus, flushes and closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	detach := r.detach
	r.detach = nil
	r.mu.Unlock()
	for _, fn := range detach {
		fn()
	}

	flushErr := r.Flush(context.Background())

	sqlDB, err := r.db.DB()
	if err != nil {
		return errors.Join(flushErr, err)
	}
	return errors.Join(flushErr, sqlDB.Close())
}
