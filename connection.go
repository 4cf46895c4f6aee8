package pgwalreceiver

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/lib/pq"
)

// connManager owns the connection strings and credentials for both
// connection roles: short-lived control connections for catalog and slot
// DDL work, and the long-lived replication-mode connection a stream
// session holds. The split is a protocol requirement; the replication
// connection cannot run ordinary extended-protocol SQL.
type connManager struct {
	cfg    Config
	logger *log.Logger
}

func newConnManager(cfg Config, logger *log.Logger) *connManager {
	return &connManager{cfg: cfg, logger: logger}
}

func (m *connManager) controlDSN() string {
	sslMode := "disable"
	if m.cfg.TlsVerify == TlsRequireVerify {
		sslMode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		m.cfg.DbUser,
		m.cfg.DbPassword,
		m.cfg.DbHost,
		m.cfg.DbPort,
		m.cfg.DbName,
		sslMode,
	)
}

// withControlConn opens a control connection, runs fn against it and
// closes it on every exit path. Control connections are deliberately
// per-operation; nothing in this library holds one open across calls.
func (m *connManager) withControlConn(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := sql.Open("postgres", m.controlDSN())
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer db.Close()

	if err = db.PingContext(ctx); err != nil {
		return &ConnectionError{Err: err}
	}
	return fn(db)
}

// openReplicationConn dials the replication-mode connection used by a
// stream session. pgconn speaks the simple query protocol on replication
// connections, which is what logical decoding requires.
func (m *connManager) openReplicationConn(ctx context.Context) (*pgconn.PgConn, error) {
	cfg, err := pgconn.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s:%d/%s?replication=%s",
		m.cfg.DbUser,
		m.cfg.DbPassword,
		m.cfg.DbHost,
		m.cfg.DbPort,
		m.cfg.DbName,
		m.cfg.ReplicationMode,
	))
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	if m.cfg.TlsVerify == TlsRequireVerify {
		cfg.TLSConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	if version := serverVersionNumber(conn.ParameterStatus("server_version")); version != 0 && version < m.cfg.MinServerVersion {
		_ = conn.Close(ctx)
		return nil, &ConnectionError{
			Err: fmt.Errorf("server version %.1f below required minimum %.1f", version, m.cfg.MinServerVersion),
		}
	}

	return conn, nil
}

// serverVersionNumber turns a server_version parameter such as
// "14.5 (Debian 14.5-1)" or "9.6.24" into a comparable major.minor
// number. Unparseable versions yield 0 and skip the floor check.
func serverVersionNumber(reported string) float64 {
	fields := strings.Fields(reported)
	if len(fields) == 0 {
		return 0
	}
	parts := strings.SplitN(fields[0], ".", 3)
	numeric := parts[0]
	if len(parts) > 1 {
		numeric = parts[0] + "." + parts[1]
	}
	version, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0
	}
	return version
}
