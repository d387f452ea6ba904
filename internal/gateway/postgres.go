package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/queryadvisor/pgopt/internal/plan"
	"github.com/queryadvisor/pgopt/internal/schema"
)

// DSNConfig is the connection configuration for PostgresGateway, mirroring
// the field set the teacher's adapter/postgres uses to build a lib/pq DSN.
type DSNConfig struct {
	Host     string
	Port     int
	Socket   string
	User     string
	Password string
	DbName   string
	SslMode  string
}

// buildDSN renders a lib/pq-compatible connection string, adapted from the
// teacher's postgresBuildDSN (database/postgres/database.go): prefers a Unix
// socket host override, and adds sslmode only when SslMode is set.
func buildDSN(c DSNConfig) string {
	var options []string
	host := fmt.Sprintf("%s:%d", c.Host, c.Port)
	if c.Socket != "" {
		options = append(options, fmt.Sprintf("host=%s", c.Socket))
		host = ""
	}
	if c.SslMode != "" {
		options = append(options, fmt.Sprintf("sslmode=%s", c.SslMode))
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Password, host, c.DbName)
	if len(options) > 0 {
		dsn += "?" + strings.Join(options, "&")
	}
	return dsn
}

// PostgresGateway is the concrete Planner Gateway (C1) backed by
// database/sql + lib/pq, following the connection-management style of the
// teacher's PostgresDatabase (database/postgres/database.go): one pooled
// *sql.DB for read-only catalog access, and a fresh session (a dedicated
// *sql.Conn) per what-if trial so hypothetical state never leaks across
// trials (spec.md section 5).
type PostgresGateway struct {
	db *sql.DB

	capOnce      sync.Once
	capAvailable bool
}

// NewPostgresGateway opens a pooled connection using cfg and returns a ready
// Gateway. It does not probe hypopg availability eagerly; that happens once,
// lazily, on first use (spec.md section 4.1).
func NewPostgresGateway(cfg DSNConfig) (*PostgresGateway, error) {
	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("gateway: open: %w", err)
	}
	return &PostgresGateway{db: db}, nil
}

func (g *PostgresGateway) Close() error {
	return g.db.Close()
}

// withTimeout runs fn on a connection checked out of the pool with `statement_timeout` set to
// timeoutMs, translating pq's timeout/cancel errors into ErrTimeout and any
// connection failure into ErrTransport, per spec.md section 4.1 and 7.
func (g *PostgresGateway) withTimeout(ctx context.Context, timeoutMs int, fn func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer conn.Close()

	if timeoutMs > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = %d", timeoutMs)); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}

	err = fn(ctx, conn)
	if err == nil {
		return nil
	}
	if isTimeoutErr(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if isSyntaxErr(err) {
		return fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func isTimeoutErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "statement timeout") ||
		strings.Contains(msg, "canceling statement") ||
		errors.Is(err, context.DeadlineExceeded)
}

func isSyntaxErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "syntax error") || strings.Contains(msg, "42601")
}

func (g *PostgresGateway) Explain(ctx context.Context, sqlText string, analyze bool, timeoutMs int) (*plan.Tree, error) {
	if !looksLikeSelect(sqlText) {
		return nil, fmt.Errorf("%w: only SELECT statements are explainable", ErrSyntax)
	}
	opts := "FORMAT JSON"
	if analyze {
		opts = "ANALYZE, BUFFERS, TIMING, FORMAT JSON"
	}
	return g.runExplain(ctx, opts, sqlText, timeoutMs)
}

func (g *PostgresGateway) ExplainCosts(ctx context.Context, sqlText string, timeoutMs int) (*plan.Tree, error) {
	return g.runExplain(ctx, "FORMAT JSON", sqlText, timeoutMs)
}

func (g *PostgresGateway) runExplain(ctx context.Context, opts, sqlText string, timeoutMs int) (*plan.Tree, error) {
	query := fmt.Sprintf("EXPLAIN (%s) %s", opts, sqlText)
	var raw string
	err := g.withTimeout(ctx, timeoutMs, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query).Scan(&raw)
	})
	if err != nil {
		return nil, err
	}
	tree, decErr := decodeExplainJSON(raw)
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, decErr)
	}
	return tree, nil
}

func looksLikeSelect(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	trimmed = strings.TrimLeft(trimmed, "(")
	return len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "select")
}

// FetchSchema loads table/column/index/row-estimate facts, adapted from the
// teacher's catalog queries in database/postgres/database.go (getColumns,
// getIndexDefs) but reading information_schema/pg_stats instead of building
// DDL.
func (g *PostgresGateway) FetchSchema(ctx context.Context, filter schema.Filter, timeoutMs int) (*schema.Snapshot, error) {
	snap := schema.Empty()
	err := g.withTimeout(ctx, timeoutMs, func(ctx context.Context, conn *sql.Conn) error {
		tables, err := g.tableNames(ctx, conn, filter)
		if err != nil {
			return err
		}
		for _, t := range tables {
			cols, err := g.columns(ctx, conn, t)
			if err != nil {
				return err
			}
			idxs, err := g.indexes(ctx, conn, t)
			if err != nil {
				return err
			}
			snap.Tables[t] = schema.TableDef{Columns: cols, Indexes: idxs}

			rows, err := g.rowEstimate(ctx, conn, t)
			if err != nil {
				return err
			}
			snap.RowEstimate[t] = rows
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (g *PostgresGateway) tableNames(ctx context.Context, conn *sql.Conn, filter schema.Filter) ([]string, error) {
	query := `select table_name from information_schema.tables where table_schema = coalesce(nullif($1, ''), 'public')`
	args := []any{filter.Schema}
	if filter.Table != "" {
		query += " and table_name = $2"
		args = append(args, filter.Table)
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (g *PostgresGateway) columns(ctx context.Context, conn *sql.Conn, table string) ([]schema.ColumnDef, error) {
	rows, err := conn.QueryContext(ctx, `
		select column_name, data_type, is_nullable = 'YES'
		from information_schema.columns
		where table_name = $1
		order by ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.ColumnDef
	for rows.Next() {
		var name, dataType string
		var nullable bool
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, err
		}
		out = append(out, schema.ColumnDef{
			Name:     name,
			Kind:     columnKindOf(dataType),
			Nullable: nullable,
		})
	}
	return out, rows.Err()
}

func columnKindOf(pgType string) schema.ColumnKind {
	switch pgType {
	case "integer", "smallint", "serial":
		return schema.KindInteger
	case "bigint", "bigserial":
		return schema.KindBigint
	case "timestamp without time zone", "timestamp with time zone", "date":
		return schema.KindTimestamp
	case "boolean":
		return schema.KindBoolean
	case "text", "character varying", "character":
		return schema.KindText
	case "numeric", "real", "double precision":
		return schema.KindNumeric
	default:
		return schema.KindOther
	}
}

func (g *PostgresGateway) indexes(ctx context.Context, conn *sql.Conn, table string) ([]schema.IndexDef, error) {
	rows, err := conn.QueryContext(ctx, `
		select i.relname as index_name, a.attname as column_name,
		       (ix.indoption[k.ord] & 1) = 1 as is_desc, ix.indisunique
		from pg_class t
		join pg_index ix on t.oid = ix.indrelid
		join pg_class i on i.oid = ix.indexrelid
		join lateral unnest(ix.indkey) with ordinality as k(attnum, ord) on true
		join pg_attribute a on a.attrelid = t.oid and a.attnum = k.attnum
		where t.relname = $1
		order by i.relname, k.ord`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := map[string]*schema.IndexDef{}
	var order []string
	for rows.Next() {
		var idxName, colName string
		var isDesc, isUnique bool
		if err := rows.Scan(&idxName, &colName, &isDesc, &isUnique); err != nil {
			return nil, err
		}
		def, ok := byName[idxName]
		if !ok {
			def = &schema.IndexDef{Name: idxName, Unique: isUnique}
			byName[idxName] = def
			order = append(order, idxName)
		}
		def.Columns = append(def.Columns, schema.IndexColumn{Name: colName, Desc: isDesc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]schema.IndexDef, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (g *PostgresGateway) rowEstimate(ctx context.Context, conn *sql.Conn, table string) (int64, error) {
	var estimate sql.NullFloat64
	err := conn.QueryRowContext(ctx, `select reltuples from pg_class where relname = $1`, table).Scan(&estimate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if !estimate.Valid || estimate.Float64 < 0 {
		return 0, nil
	}
	return int64(estimate.Float64), nil
}

// HypotheticalIndexCapability probes `hypopg_reset()` once per process
// lifetime, per spec.md section 4.1: "Hypothetical-extension absence is
// reported once via a capability probe; subsequent calls return Unavailable
// without attempting creation."
func (g *PostgresGateway) HypotheticalIndexCapability(ctx context.Context) bool {
	g.capOnce.Do(func() {
		err := g.withTimeout(ctx, 2000, func(ctx context.Context, conn *sql.Conn) error {
			_, err := conn.ExecContext(ctx, "SELECT hypopg_reset()")
			return err
		})
		g.capAvailable = err == nil
		if err != nil {
			slog.Default().Debug("hypopg capability probe failed", "error", err)
		}
	})
	return g.capAvailable
}

func (g *PostgresGateway) WithHypotheticalIndex(ctx context.Context, col ColumnDef, sqlText string, timeoutMs int) (*plan.Tree, int64, error) {
	if !g.HypotheticalIndexCapability(ctx) {
		return nil, 0, ErrUnavailable
	}

	var tree *plan.Tree
	started := time.Now()
	err := g.withTimeout(ctx, timeoutMs, func(ctx context.Context, conn *sql.Conn) error {
		// hypopg_reset on entry guarantees no leakage from a prior trial
		// that used this same pooled connection (spec.md section 5).
		if _, err := conn.ExecContext(ctx, "SELECT hypopg_reset()"); err != nil {
			return err
		}
		defer conn.ExecContext(context.Background(), "SELECT hypopg_reset()") //nolint:errcheck // best-effort reset on every exit path

		ddl := buildCreateIndexDDL(col)
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SELECT hypopg_create_index(%s)", quoteLiteral(ddl))); err != nil {
			return err
		}

		query := fmt.Sprintf("EXPLAIN (FORMAT JSON) %s", sqlText)
		var raw string
		if err := conn.QueryRowContext(ctx, query).Scan(&raw); err != nil {
			return err
		}
		decoded, decErr := decodeExplainJSON(raw)
		if decErr != nil {
			return decErr
		}
		tree = decoded
		return nil
	})
	duration := time.Since(started).Milliseconds()
	if err != nil {
		return nil, duration, err
	}
	return tree, duration, nil
}

func buildCreateIndexDDL(col ColumnDef) string {
	parts := make([]string, len(col.Columns))
	for i, c := range col.Columns {
		if i < len(col.Descending) && col.Descending[i] {
			parts[i] = c + " DESC"
		} else {
			parts[i] = c
		}
	}
	return fmt.Sprintf("CREATE INDEX ON %s (%s)", col.Relation, strings.Join(parts, ", "))
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

