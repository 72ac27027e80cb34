package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	DBSystem        string
	SlowQueryThresh time.Duration
	IncludeSQLVars  bool
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin on db and tags spans of
// queries slower than the configured threshold.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.IncludeSQLVars {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	// The after hooks must run while the otelgorm span is still open.
	after := func(tx *gorm.DB) { markSlowQuery(tx, cfg.SlowQueryThresh) }

	cb := db.Callback()
	steps := []error{
		cb.Create().Before("gorm:create").Register("slow_query:before_create", before),
		cb.Query().Before("gorm:query").Register("slow_query:before_query", before),
		cb.Update().Before("gorm:update").Register("slow_query:before_update", before),
		cb.Delete().Before("gorm:delete").Register("slow_query:before_delete", before),
		cb.Raw().Before("gorm:raw").Register("slow_query:before_raw", before),
		cb.Create().After("gorm:create").Before("otel:after:create").Register("slow_query:after_create", after),
		cb.Query().After("gorm:query").Before("otel:after:select").Register("slow_query:after_query", after),
		cb.Update().After("gorm:update").Before("otel:after:update").Register("slow_query:after_update", after),
		cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("slow_query:after_delete", after),
		cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("slow_query:after_raw", after),
	}
	if err := errors.Join(steps...); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

func markSlowQuery(tx *gorm.DB, threshold time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil || threshold <= 0 {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > threshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}
