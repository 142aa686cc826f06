package engine

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// maxErrorLen bounds the length of error messages returned to callers.
const maxErrorLen = 200

const (
	msgTimedOut  = "query timed out"
	msgTimeLimit = "query exceeded the execution time limit"
)

var (
	pathPattern = regexp.MustCompile(`(^|[\s'"(=])(/[A-Za-z0-9._\-]+)+/?`)
	ipPattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`)
	spaceRun    = regexp.MustCompile(`\s+`)
)

// classify maps a failure to the message reported to callers.
func (e *Executor) classify(ctx context.Context, err error, query string) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return msgTimedOut
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 3024, 1317:
			return msgTimeLimit
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57014" {
		return msgTimeLimit
	}

	return SanitizeError(err.Error(), query)
}

// SanitizeError strips the statement text, filesystem paths and network
// addresses from a driver message and bounds its length.
func SanitizeError(msg, query string) string {
	if q := strings.TrimSpace(query); q != "" {
		msg = strings.ReplaceAll(msg, q, "[query]")
	}
	msg = pathPattern.ReplaceAllString(msg, "${1}[path]")
	msg = ipPattern.ReplaceAllString(msg, "[ip]")
	msg = strings.TrimSpace(spaceRun.ReplaceAllString(msg, " "))
	if msg == "" {
		msg = "query failed"
	}
	if r := []rune(msg); len(r) > maxErrorLen {
		msg = string(r[:maxErrorLen-3]) + "..."
	}
	return msg
}

// normalizeValue converts driver values into JSON-friendly forms. Decimals
// are rendered as strings to keep their exact scale.
func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case *big.Int:
		if x == nil {
			return nil
		}
		return x.String()
	case duckdb.Decimal:
		if x.Value == nil {
			return nil
		}
		return decimal.NewFromBigInt(x.Value, -int32(x.Scale)).StringFixed(int32(x.Scale))
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
