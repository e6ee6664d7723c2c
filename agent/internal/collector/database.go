package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

const dbConnectTimeout = 10 * time.Second

// Database checks PostgreSQL connectivity.
type Database struct {
	dbs    []config.Database
	logger *slog.Logger
}

// NewDatabase returns the database collector.
func NewDatabase(dbs []config.Database, logger *slog.Logger) *Database {
	return &Database{dbs: dbs, logger: logger}
}

// Name implements Collector.
func (d *Database) Name() string { return NameDatabase }

// Collect implements Collector.
func (d *Database) Collect(ctx context.Context) ([]types.Observation, error) {
	d.logger.Info("collector: checking databases", "count", len(d.dbs))
	return fanOut(ctx, d.dbs, d.check), nil
}

func (d *Database) check(ctx context.Context, db config.Database) types.Observation {
	target := db.DisplayName()
	user, password := db.User(), db.Password()
	if user == "" || password == "" {
		return types.Failed(NameDatabase, target, types.SeverityUnknown, nil,
			"Missing database credentials in environment", errors.New("missing credentials"))
	}

	connCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	conn, err := pgx.Connect(connCtx, connString(db, user, password))
	if err != nil {
		return types.Failed(NameDatabase, target, types.SeverityRed, nil,
			"Connection failed: "+redact(err.Error(), password), err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var version string
	if err := conn.QueryRow(connCtx, "SELECT version()").Scan(&version); err != nil {
		return types.Failed(NameDatabase, target, types.SeverityRed, nil,
			"Database error: "+err.Error(), err)
	}

	metrics := types.Metrics{
		{Key: "version", Value: shortVersion(version)},
		{Key: "host", Value: db.Host},
		{Key: "port", Value: db.Port},
		{Key: "database", Value: db.Database},
	}
	msg := "Connected successfully"
	if db.Table != "" {
		var n int64
		err := conn.QueryRow(connCtx, "SELECT COUNT(*) FROM "+tableIdent(db.Table)).Scan(&n)
		if err != nil {
			d.logger.Warn("collector: table count failed", "target", target, "table", db.Table, "err", err)
			metrics = append(metrics, types.Metric{Key: "table_query_error", Value: pgMessage(err)})
		} else {
			metrics = append(metrics,
				types.Metric{Key: "row_count", Value: n},
				types.Metric{Key: "table", Value: db.Table})
			msg += fmt.Sprintf(", table %s: %d rows", db.Table, n)
		}
	}
	return types.NewObservation(NameDatabase, target, types.SeverityGreen, metrics, msg)
}

// connString builds a postgres URL. connect_timeout matches the dial
// deadline so libpq-style servers see the same bound.
func connString(db config.Database, user, password string) string {
	q := url.Values{}
	q.Set("sslmode", db.SSLMode)
	q.Set("connect_timeout", strconv.Itoa(int(dbConnectTimeout.Seconds())))
	if db.SSLRootCert != "" {
		q.Set("sslrootcert", db.SSLRootCert)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:     "/" + db.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// tableIdent quotes a possibly schema-qualified table name.
func tableIdent(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

// shortVersion keeps the part of version() before the first comma.
func shortVersion(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		return v[:i]
	}
	return truncate(v, 100)
}

func pgMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code + ": " + pgErr.Message
	}
	return err.Error()
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "****")
}
