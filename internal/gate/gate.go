// Package gate answers whether live traffic is currently flowing through this
// site, by checking the age of the newest row in a database table. Gated
// monitors skip their cycle entirely while traffic is inactive so an idle
// standby site never raises false alarms.
package gate

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigilohq/agent/internal/config"
)

const defaultQueryTimeout = 5 * time.Second

// Gate reports whether monitored traffic is active. Implementations must be
// fail-open: any probe error reads as inactive.
type Gate interface {
	Active(ctx context.Context) bool
}

// Always is an open gate for monitors that are not traffic-gated.
type Always struct{}

func (Always) Active(ctx context.Context) bool { return true }

// DBActivity checks SELECT max(timestamp_column) age against an inactivity
// threshold.
type DBActivity struct {
	pool       *pgxpool.Pool
	query      string
	threshold  time.Duration
	timeout    time.Duration
	logger     *log.Logger
}

// NewDBActivity connects a pooled gate from the traffic_gate config section.
// The pool connects lazily, so a database that is down at startup only makes
// the gate read inactive until it comes back.
func NewDBActivity(ctx context.Context, cfg config.TrafficGateConfig, logger *log.Logger) (*DBActivity, error) {
	if cfg.Table == "" || cfg.TimestampColumn == "" {
		return nil, fmt.Errorf("traffic gate requires table and timestamp_column")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s connect_timeout=%d",
		cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPassword,
		max(cfg.ConnectTimeoutSecs, 5),
	)
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse traffic gate dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open traffic gate pool: %w", err)
	}

	return &DBActivity{
		pool: pool,
		query: fmt.Sprintf(
			"SELECT EXTRACT(EPOCH FROM (now() - MAX(%s))) FROM %s",
			cfg.TimestampColumn, cfg.Table,
		),
		threshold: config.Seconds(cfg.InactivitySeconds, 5*time.Minute),
		timeout:   config.Seconds(cfg.ConnectTimeoutSecs, defaultQueryTimeout),
		logger:    logger,
	}, nil
}

// Active queries the newest row age. An error, an empty table, or an age past
// the threshold all read as inactive.
func (g *DBActivity) Active(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var age *float64
	if err := g.pool.QueryRow(ctx, g.query).Scan(&age); err != nil {
		g.logger.Printf("traffic gate check failed: %v", err)
		return false
	}
	if age == nil {
		g.logger.Printf("traffic gate: no records found")
		return false
	}
	if time.Duration(*age*float64(time.Second)) > g.threshold {
		g.logger.Printf("traffic gate: inactive (last record %ds ago)", int(*age))
		return false
	}
	return true
}

// Close releases the database pool.
func (g *DBActivity) Close() {
	g.pool.Close()
}
