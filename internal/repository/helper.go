package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ndewijer/valuation-engine/internal/month"
)

const dateFormat = "2006-01-02"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ParseTime parses a date string in "2006-01-02" or RFC3339 format.
// The sqlite driver hands DATE columns back as time values, which database/sql formats as RFC3339.
func ParseTime(str string) (time.Time, error) {
	returnTime, err := time.Parse(dateFormat, str)
	if err != nil {
		returnTime, err = time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse date: %w", err)
		}
	}
	return returnTime.UTC(), nil
}

// parseMonth parses a stored month column.
func parseMonth(str string) (month.Month, error) {
	t, err := ParseTime(str)
	if err != nil {
		return month.Month{}, err
	}
	if t.Day() != 1 {
		return month.Month{}, fmt.Errorf("stored month %q is not the first of a month", str)
	}
	return month.Normalize(t), nil
}

// parseNullMonth parses a nullable month column.
func parseNullMonth(str sql.NullString) (*month.Month, error) {
	if !str.Valid || str.String == "" {
		return nil, nil
	}
	m, err := parseMonth(str.String)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
