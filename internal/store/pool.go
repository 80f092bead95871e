// Package store persists meetings through a bounded, explicitly owned
// connection pool.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrPoolTimeout means no connection freed up within the acquire timeout.
	ErrPoolTimeout = errors.New("store: timed out waiting for a database connection")
	// ErrQuery wraps every statement failure.
	ErrQuery = errors.New("store: query failed")
)

type PoolOptions struct {
	MaxConns       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
}

// Pool is created once at startup and closed at shutdown. Callers hold one
// slot per unit of work; when all slots are taken they wait up to
// AcquireTimeout.
type Pool struct {
	db             *gorm.DB
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
	log            *logrus.Entry
}

// Open connects to Postgres.
func Open(dsn string, opts PoolOptions, log *logrus.Entry) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("store: DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: GormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewPool(db, opts, log)
}

// NewPool wraps an opened gorm handle with the pool limits.
func NewPool(db *gorm.DB, opts PoolOptions, log *logrus.Entry) (*Pool, error) {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 10
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Second
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxConns)
	sqlDB.SetMaxIdleConns(opts.MaxConns)
	if opts.IdleTimeout > 0 {
		sqlDB.SetConnMaxIdleTime(opts.IdleTimeout)
	}
	return &Pool{
		db:             db,
		sem:            semaphore.NewWeighted(int64(opts.MaxConns)),
		acquireTimeout: opts.AcquireTimeout,
		log:            log.WithField("component", "store"),
	}, nil
}

// GormLogger routes gorm's warnings (slow queries, errors) through logrus.
func GormLogger(log *logrus.Entry) gormlogger.Interface {
	return gormlogger.New(log.WithField("component", "gorm"), gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Acquire takes one slot. The returned func releases it.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	actx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()
	if err := p.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPoolTimeout
	}
	return func() { p.sem.Release(1) }, nil
}

// WithDB runs fn on a pooled slot. Statement errors come back wrapped in ErrQuery.
func (p *Pool) WithDB(ctx context.Context, fn func(db *gorm.DB) error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	if err := fn(p.db.WithContext(ctx)); err != nil {
		if errors.Is(err, ErrQuery) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return nil
}

// Ping is the liveness probe: take a slot and run SELECT 1.
func (p *Pool) Ping(ctx context.Context) error {
	return p.WithDB(ctx, func(db *gorm.DB) error {
		var one int
		return db.Raw("SELECT 1").Scan(&one).Error
	})
}

// Migrate creates or updates the schema.
func (p *Pool) Migrate(ctx context.Context) error {
	return p.WithDB(ctx, func(db *gorm.DB) error {
		return db.AutoMigrate(&User{}, &Meeting{}, &Participant{}, &EngagementSignal{})
	})
}

func (p *Pool) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
