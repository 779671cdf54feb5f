// Package driver
package driver

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPool is an interface that represents a connection pool to a driver.
type PostgresPool interface {
	// Acquire returns a connection from the pool.
	Acquire(ctx context.Context) (*pgxpool.Conn, error)

	// BeginTx starts a new transaction and returns a Tx.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)

	// Exec executes an SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)

	// Query executes an SQL query and returns the resulting rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// QueryRow executes an SQL query and returns a single row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	// SendBatch sends a batch of queries to the server. The batch is executed as a single transaction.
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults

	// Close closes the pool and all its connections.
	Close()
}

// Querier is the minimal query surface shared by PostgresPool and pgx.Tx.
// Repositories run their SQL through a Querier so the same method works both
// inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx returns tx as the Querier when a transaction is in progress,
// otherwise the bare pool.
func WithTx(conn PostgresPool, tx pgx.Tx) Querier {
	if tx != nil {
		return tx
	}
	return conn
}

// DB holds the driver connection pool
type DB struct {
	Pool PostgresPool
}

// dbConn represents a connection to a driver.
// It contains an SQL pool from the pgxpool package.
var dbConn = &DB{}

// maxOpenDbConn defines the maximum number of open driver connections.
// It is used to limit the number of concurrent connections to the driver.
const maxOpenDbConn = 10

// maxDbLifetime is the maximum lifetime of a driver connection in the pool.
// When a connection reaches its maximum lifetime, it will be closed and a new connection will be created.
// The value is set to 5 minutes (five * time.Minute).
const maxDbLifetime = 5 * time.Minute

// ConnectSQL connects to the Postgres server and returns a DB instance and an error.
// The function parses the DSN with pgxpool.ParseConfig, sets the max connection
// count and connection lifetime on the config, and creates the pool with
// pgxpool.NewWithConfig. It also calls the testDB function to check if the
// connection to the driver is successful.
func ConnectSQL(dsn string) (*DB, error) {

	// parse the config
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	config.MaxConns = int32(maxOpenDbConn)
	config.MaxConnLifetime = maxDbLifetime

	// create the pool
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	dbConn.Pool = pool

	if err = testDB(pool); err != nil {
		return nil, err
	}

	return dbConn, nil
}

// testDB acquires and releases a connection from the pool
func testDB(p *pgxpool.Pool) error {
	conn, err := p.Acquire(context.Background())
	if err != nil {
		return err
	}
	defer conn.Release()
	return nil
}
