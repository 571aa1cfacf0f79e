package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	ClinicIDKey contextKey = "clinic_id"
	DBConnKey   contextKey = "db_conn"
)

var clinicIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

// ClinicSchema returns the Postgres schema holding one clinic's charts.
func ClinicSchema(clinicID string) (string, error) {
	if !clinicIDPattern.MatchString(clinicID) {
		return "", fmt.Errorf("invalid clinic identifier: %q", clinicID)
	}
	return "clinic_" + clinicID, nil
}

// ClinicMiddleware pins a pooled connection to the caller's clinic schema for
// the duration of the request and exposes it through ConnFromContext.
func ClinicMiddleware(pool *pgxpool.Pool, defaultClinic string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clinicID := extractClinicID(c, defaultClinic)
			err := WithClinic(c.Request().Context(), pool, clinicID, func(ctx context.Context) error {
				c.SetRequest(c.Request().WithContext(ctx))
				c.Set("clinic_id", clinicID)
				return next(c)
			})
			var ce *clinicConnError
			if errors.As(err, &ce) {
				return echo.NewHTTPError(ce.status, ce.msg)
			}
			return err
		}
	}
}

type clinicConnError struct {
	status int
	msg    string
	err    error
}

func (e *clinicConnError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *clinicConnError) Unwrap() error { return e.err }

// WithClinic runs fn with a connection whose search_path points at the
// clinic's schema. Repositories pick the connection up via ConnFromContext.
func WithClinic(ctx context.Context, pool *pgxpool.Pool, clinicID string, fn func(ctx context.Context) error) error {
	schema, err := ClinicSchema(clinicID)
	if err != nil {
		return &clinicConnError{http.StatusBadRequest, "invalid clinic identifier", err}
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return &clinicConnError{http.StatusServiceUnavailable, "database unavailable", err}
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema)); err != nil {
		return &clinicConnError{http.StatusInternalServerError, "clinic resolution failed", err}
	}
	// The connection goes back to the pool; do not leak the schema.
	defer conn.Exec(context.Background(), "RESET search_path")

	ctx = context.WithValue(ctx, ClinicIDKey, clinicID)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return fn(ctx)
}

func extractClinicID(c echo.Context, defaultClinic string) string {
	if cid, ok := c.Get("jwt_clinic_id").(string); ok && cid != "" {
		return cid
	}
	if cid := c.Request().Header.Get("X-Clinic-ID"); cid != "" {
		return cid
	}
	return defaultClinic
}

// ConnFromContext retrieves the clinic-scoped connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// ClinicFromContext retrieves the clinic ID from context.
func ClinicFromContext(ctx context.Context) string {
	cid, _ := ctx.Value(ClinicIDKey).(string)
	return cid
}

// CreateClinicSchema creates the schema for a clinic and migrates it.
func CreateClinicSchema(ctx context.Context, pool *pgxpool.Pool, clinicID string, migrator *Migrator) error {
	schema, err := ClinicSchema(clinicID)
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrator != nil {
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}
	return nil
}
