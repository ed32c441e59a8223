package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:lti13demo.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/lti13demo?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	// Try the script whole; if the driver rejects multiple statements,
	// fall back to splitting on semicolons (sufficient for simple DDL).
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range strings.Split(schema, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema: %w", err)
			}
		}
	}
	return nil
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS platform_deployments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  iss TEXT NOT NULL,
  client_id TEXT NOT NULL,
  deployment_id TEXT NOT NULL DEFAULT '',
  oidc_auth_endpoint TEXT NOT NULL DEFAULT '',
  token_endpoint TEXT NOT NULL DEFAULT '',
  jwks_endpoint TEXT NOT NULL DEFAULT '',
  tool_kid TEXT NOT NULL DEFAULT '',
  platform_kid TEXT NOT NULL DEFAULT '',
  UNIQUE (iss, client_id, deployment_id)
);

CREATE INDEX IF NOT EXISTS platform_deployments_iss_idx
  ON platform_deployments (iss);

CREATE TABLE IF NOT EXISTS rsa_keys (
  kid TEXT NOT NULL,
  is_private INTEGER NOT NULL,
  public_pem TEXT NOT NULL DEFAULT '',
  private_pem TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (kid, is_private)
);

CREATE TABLE IF NOT EXISTS nonces (
  value TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL,
  consumed_at INTEGER
);

CREATE INDEX IF NOT EXISTS nonces_created_idx ON nonces (created_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS platform_deployments (
  id BIGSERIAL PRIMARY KEY,
  iss TEXT NOT NULL,
  client_id TEXT NOT NULL,
  deployment_id TEXT NOT NULL DEFAULT '',
  oidc_auth_endpoint TEXT NOT NULL DEFAULT '',
  token_endpoint TEXT NOT NULL DEFAULT '',
  jwks_endpoint TEXT NOT NULL DEFAULT '',
  tool_kid TEXT NOT NULL DEFAULT '',
  platform_kid TEXT NOT NULL DEFAULT '',
  UNIQUE (iss, client_id, deployment_id)
);

CREATE INDEX IF NOT EXISTS platform_deployments_iss_idx
  ON platform_deployments (iss);

CREATE TABLE IF NOT EXISTS rsa_keys (
  kid TEXT NOT NULL,
  is_private BOOLEAN NOT NULL,
  public_pem TEXT NOT NULL DEFAULT '',
  private_pem TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (kid, is_private)
);

CREATE TABLE IF NOT EXISTS nonces (
  value TEXT PRIMARY KEY,
  created_at BIGINT NOT NULL,
  consumed_at BIGINT
);

CREATE INDEX IF NOT EXISTS nonces_created_idx ON nonces (created_at);
`
