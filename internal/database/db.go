package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FileName is the sqlite file created under the data directory
const FileName = "readiness.db"

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens (and migrates) the database in dataDir
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite serializes writers; a small pool avoids SQLITE_BUSY churn
	pool := NewConnectionPool(db, 8, 4, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS assessments (
			id TEXT PRIMARY KEY,
			repo_name TEXT NOT NULL,
			repo_path TEXT NOT NULL,
			repo_url TEXT,
			primary_language TEXT,
			repository TEXT NOT NULL, -- JSON types.Repository
			overall_score REAL NOT NULL,
			certification_level TEXT NOT NULL,
			attributes_total INTEGER NOT NULL,
			attributes_assessed INTEGER NOT NULL,
			attributes_skipped INTEGER NOT NULL,
			attributes_errored INTEGER NOT NULL,
			breakdown TEXT, -- JSON contributions
			duration_ms INTEGER NOT NULL,
			assessed_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS findings (
			assessment_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			attribute_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT,
			score REAL NOT NULL,
			status TEXT NOT NULL,
			evidence TEXT, -- JSON array
			remediation TEXT,
			PRIMARY KEY (assessment_id, position),
			FOREIGN KEY (assessment_id) REFERENCES assessments(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS benchmark_results (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			repository TEXT NOT NULL,
			score REAL NOT NULL,
			metadata TEXT, -- JSON object
			completed_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS deltas (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			assessor_id TEXT NOT NULL,
			repository TEXT,
			delta_score REAL NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_assessments_assessed_at ON assessments(assessed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_repo_path ON assessments(repo_path, assessed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_benchmark_results_batch ON benchmark_results(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_benchmark_results_completed ON benchmark_results(completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_deltas_assessor ON deltas(assessor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deltas_created ON deltas(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_assessment": `INSERT INTO assessments (
			id, repo_name, repo_path, repo_url, primary_language, repository,
			overall_score, certification_level, attributes_total, attributes_assessed,
			attributes_skipped, attributes_errored, breakdown, duration_ms, assessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_finding": `INSERT INTO findings (
			assessment_id, position, attribute_id, name, category, score, status, evidence, remediation
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_benchmark_result": `INSERT INTO benchmark_results (id, batch_id, repository, score, metadata, completed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,

		"insert_delta": `INSERT INTO deltas (assessor_id, repository, delta_score, created_at)
			VALUES (?, ?, ?, ?)`,

		"get_assessment": `SELECT id, repository, overall_score, certification_level,
			attributes_total, attributes_assessed, attributes_skipped, attributes_errored,
			breakdown, duration_ms, assessed_at
			FROM assessments WHERE id = ?`,

		"get_findings": `SELECT attribute_id, name, category, score, status, evidence, remediation
			FROM findings WHERE assessment_id = ? ORDER BY position ASC`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
