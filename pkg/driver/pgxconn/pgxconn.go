package pgxconn

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// txStatusIdle is the wire-protocol transaction status byte for "no open
// transaction".
const txStatusIdle = 'I'

// Conn adapts a single *pgx.Conn to the driver.Conn contract. Transaction
// control is issued as plain SQL so that the scope operations stay the single
// source of truth for what gets opened; pgx's own Begin/Tx nesting is
// deliberately not used. Not safe for concurrent use, same as the underlying
// connection.
type Conn struct {
	conn   *pgx.Conn
	logger *zap.Logger
}

func New(conn *pgx.Conn, logger *zap.Logger) *Conn {
	return &Conn{conn: conn, logger: logger}
}

func (c *Conn) BeginTransaction(ctx context.Context) error {
	return c.exec(ctx, "BEGIN")
}

func (c *Conn) Commit(ctx context.Context) error {
	return c.exec(ctx, "COMMIT")
}

func (c *Conn) Rollback(ctx context.Context) error {
	return c.exec(ctx, "ROLLBACK")
}

func (c *Conn) CreateSavepoint(ctx context.Context, name string) error {
	return c.exec(ctx, "SAVEPOINT "+pgx.Identifier{name}.Sanitize())
}

func (c *Conn) ReleaseSavepoint(ctx context.Context, name string) error {
	return c.exec(ctx, "RELEASE SAVEPOINT "+pgx.Identifier{name}.Sanitize())
}

func (c *Conn) RollbackToSavepoint(ctx context.Context, name string) error {
	return c.exec(ctx, "ROLLBACK TO SAVEPOINT "+pgx.Identifier{name}.Sanitize())
}

// IsTransactionOpen answers from the wire-protocol status byte the server
// sends with every response, so no query is issued.
func (c *Conn) IsTransactionOpen() bool {
	return c.conn.PgConn().TxStatus() != txStatusIdle
}

func (c *Conn) exec(ctx context.Context, sql string) error {
	if _, err := c.conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to execute %q: %w", sql, err)
	}
	c.logger.Debug("executed transaction control statement", zap.String("sql", sql))
	return nil
}
