// Package uds is the user data store: durable records of every node whose
// provisioning was started. The processor registers nodes here right after the
// cloud handler call, so operators can account for compute resources even when
// a creation later fails or the process dies mid-flight.
package uds

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// Store defines all functions to interact with the user data store
type Store interface {
	RegisterStartedNode(ctx context.Context, infraID models.InfraID, nodeName string, instance *models.InstanceData) error
	StartedNodes(ctx context.Context, infraID models.InfraID) ([]*models.InstanceData, error)
	Node(ctx context.Context, nodeID string) (*models.InstanceData, error)
	RemoveNode(ctx context.Context, nodeID string) error
	// Health check
	Ping(ctx context.Context) error
	// Cleanup
	Close() error
}

// SQLStore provides all functions to execute user data store queries
type SQLStore struct {
	db *sql.DB
}

// Config holds database configuration
type Config struct {
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// DefaultConfig returns default database configuration
func DefaultConfig() *Config {
	return &Config{
		Path:            "./data/infraweave.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 300, // 5 minutes
	}
}

//go:embed schema.sql
var ddl string

// NewStore creates a new Store with automatic schema setup
func NewStore(config *Config) (Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Ensure directory exists
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db}
	if err := store.Setup(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

// NewStoreFromDB creates a new Store from an existing database connection
// Useful for testing
func NewStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Setup sets up the database schema
func (s *SQLStore) Setup(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to setup database schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// RegisterStartedNode records that instance's provisioning has started.
// Registering the same node id again overwrites the record, so retried
// creations converge on the latest state.
func (s *SQLStore) RegisterStartedNode(ctx context.Context, infraID models.InfraID, nodeName string, instance *models.InstanceData) error {
	data, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to encode instance data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO started_nodes (node_id, infra_id, node_name, user_id, backend_id, instance_id, instance_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			node_name     = excluded.node_name,
			backend_id    = excluded.backend_id,
			instance_id   = excluded.instance_id,
			instance_data = excluded.instance_data
	`, instance.NodeID, string(infraID), nodeName, instance.UserID,
		instance.BackendID, instance.InstanceID, string(data), instance.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to register started node: %w", err)
	}
	return nil
}

// StartedNodes returns the instance records registered under an
// infrastructure, oldest first.
func (s *SQLStore) StartedNodes(ctx context.Context, infraID models.InfraID) ([]*models.InstanceData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_data FROM started_nodes
		WHERE infra_id = ?
		ORDER BY registered_at, node_id
	`, string(infraID))
	if err != nil {
		return nil, fmt.Errorf("failed to query started nodes: %w", err)
	}
	defer rows.Close()

	var instances []*models.InstanceData
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan started node: %w", err)
		}
		var instance models.InstanceData
		if err := json.Unmarshal([]byte(data), &instance); err != nil {
			return nil, fmt.Errorf("failed to decode instance data: %w", err)
		}
		instances = append(instances, &instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read started nodes: %w", err)
	}
	return instances, nil
}

// Node returns one instance record by node id.
func (s *SQLStore) Node(ctx context.Context, nodeID string) (*models.InstanceData, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT instance_data FROM started_nodes WHERE node_id = ?`, nodeID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", errors.ErrNodeNotFound, nodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node: %w", err)
	}

	var instance models.InstanceData
	if err := json.Unmarshal([]byte(data), &instance); err != nil {
		return nil, fmt.Errorf("failed to decode instance data: %w", err)
	}
	return &instance, nil
}

// RemoveNode deletes an instance record. Removing an unknown node reports
// ErrNodeNotFound.
func (s *SQLStore) RemoveNode(ctx context.Context, nodeID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM started_nodes WHERE node_id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("failed to remove node: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check removal: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", errors.ErrNodeNotFound, nodeID)
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
