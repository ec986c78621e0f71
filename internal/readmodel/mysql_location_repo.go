package readmodel

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kestrel-sim/worldkernel/internal/geo"
)

// MySQLLocationRepo implements LocationRepo over a agent_locations
// table, auto-created on first connect.
type MySQLLocationRepo struct {
	db *sql.DB
}

// NewMySQLLocationRepo connects to dsn and ensures agent_locations
// exists.
func NewMySQLLocationRepo(dsn string) (*MySQLLocationRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("readmodel: open mysql: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("readmodel: ping mysql: %w", err)
	}

	r := &MySQLLocationRepo{db: db}
	if err := r.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *MySQLLocationRepo) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS agent_locations (
			agent_id   VARCHAR(64) PRIMARY KEY,
			x_cm       BIGINT      NOT NULL,
			y_cm       BIGINT      NOT NULL,
			z_cm       BIGINT      NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("readmodel: create agent_locations: %w", err)
	}
	return nil
}

func (r *MySQLLocationRepo) Put(ctx context.Context, agentID string, pos geo.Pos) error {
	if agentID == "" {
		return fmt.Errorf("readmodel: empty agent id")
	}
	query := `
		INSERT INTO agent_locations (agent_id, x_cm, y_cm, z_cm)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			x_cm = VALUES(x_cm), y_cm = VALUES(y_cm), z_cm = VALUES(z_cm),
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query, agentID, pos.X, pos.Y, pos.Z)
	if err != nil {
		return fmt.Errorf("readmodel: put %s: %w", agentID, err)
	}
	return nil
}

func (r *MySQLLocationRepo) Get(ctx context.Context, agentID string) (geo.Pos, bool, error) {
	query := `SELECT x_cm, y_cm, z_cm FROM agent_locations WHERE agent_id = ?`
	var pos geo.Pos
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(&pos.X, &pos.Y, &pos.Z)
	if err == sql.ErrNoRows {
		return geo.Pos{}, false, nil
	}
	if err != nil {
		return geo.Pos{}, false, fmt.Errorf("readmodel: get %s: %w", agentID, err)
	}
	return pos, true, nil
}

func (r *MySQLLocationRepo) Delete(ctx context.Context, agentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM agent_locations WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("readmodel: delete %s: %w", agentID, err)
	}
	return nil
}

func (r *MySQLLocationRepo) BatchPut(ctx context.Context, positions map[string]geo.Pos) error {
	if len(positions) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("readmodel: begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_locations (agent_id, x_cm, y_cm, z_cm)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			x_cm = VALUES(x_cm), y_cm = VALUES(y_cm), z_cm = VALUES(z_cm),
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("readmodel: prepare batch: %w", err)
	}
	defer stmt.Close()

	for agentID, pos := range positions {
		if agentID == "" {
			return fmt.Errorf("readmodel: empty agent id in batch")
		}
		if _, err := stmt.ExecContext(ctx, agentID, pos.X, pos.Y, pos.Z); err != nil {
			return fmt.Errorf("readmodel: batch put %s: %w", agentID, err)
		}
	}
	return tx.Commit()
}

func (r *MySQLLocationRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
