// Package storage provides persistent trap history storage and querying.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/geekxflood/proteus/internal/dispatch"
)

// StorageConfig holds configuration for the trap history store
type StorageConfig struct {
	DatabaseType     string        `json:"database_type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	RetentionDays    int           `json:"retention_days"`
	BatchSize        int           `json:"batch_size"`
	FlushInterval    time.Duration `json:"flush_interval"`
	EnableIndexes    bool          `json:"enable_indexes"`
}

// DefaultStorageConfig returns a default storage configuration
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		DatabaseType:     "sqlite3",
		ConnectionString: "./proteus_traps.db",
		MaxConnections:   10,
		RetentionDays:    30,
		BatchSize:        100,
		FlushInterval:    5 * time.Second,
		EnableIndexes:    true,
	}
}

// TrapRecord represents a stored trap event
type TrapRecord struct {
	ID        int64     `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	DeviceID  string    `json:"device_id" db:"device_id"`
	TrapOID   string    `json:"trap_oid" db:"trap_oid"`
	Severity  string    `json:"severity" db:"severity"`
	Message   string    `json:"message" db:"message"`
	Varbinds  string    `json:"varbinds" db:"varbinds"` // JSON encoded
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TrapQuery represents query parameters for searching stored traps
type TrapQuery struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	DeviceID  string     `json:"device_id,omitempty"`
	TrapOID   string     `json:"trap_oid,omitempty"`
	Severity  string     `json:"severity,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
	OrderDesc bool       `json:"order_desc,omitempty"`
}

// StorageStats tracks trap history statistics
type StorageStats struct {
	TotalTraps        int64            `json:"total_traps"`
	TrapsToday        int64            `json:"traps_today"`
	OldestTrap        *time.Time       `json:"oldest_trap,omitempty"`
	NewestTrap        *time.Time       `json:"newest_trap,omitempty"`
	SeverityBreakdown map[string]int64 `json:"severity_breakdown"`
	DeviceBreakdown   map[string]int64 `json:"device_breakdown"`
}

// Storage provides persistent trap history functionality
type Storage struct {
	config     *StorageConfig
	db         *sql.DB
	batchQueue []*TrapRecord
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewStorage creates a new trap history store
func NewStorage(cfg config.Provider) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}

	// Load configuration
	storageConfig := DefaultStorageConfig()

	if dbType, err := cfg.GetString("storage.database_type", storageConfig.DatabaseType); err == nil {
		storageConfig.DatabaseType = dbType
	}

	if connStr, err := cfg.GetString("storage.connection_string", storageConfig.ConnectionString); err == nil {
		storageConfig.ConnectionString = connStr
	}

	if maxConn, err := cfg.GetInt("storage.max_connections", storageConfig.MaxConnections); err == nil {
		storageConfig.MaxConnections = maxConn
	}

	if retention, err := cfg.GetInt("storage.retention_days", storageConfig.RetentionDays); err == nil {
		storageConfig.RetentionDays = retention
	}

	if batchSize, err := cfg.GetInt("storage.batch_size", storageConfig.BatchSize); err == nil {
		storageConfig.BatchSize = batchSize
	}

	if flushInterval, err := cfg.GetDuration("storage.flush_interval", storageConfig.FlushInterval); err == nil {
		storageConfig.FlushInterval = flushInterval
	}

	// Open database connection
	db, err := sql.Open(storageConfig.DatabaseType, storageConfig.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(storageConfig.MaxConnections)
	db.SetMaxIdleConns(storageConfig.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	storage := &Storage{
		config:     storageConfig,
		db:         db,
		batchQueue: make([]*TrapRecord, 0, storageConfig.BatchSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	// Initialize database schema
	if err := storage.initSchema(); err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	// Start background workers
	storage.wg.Add(2)
	go storage.batchWorker()
	go storage.cleanupWorker()

	return storage, nil
}

// initSchema creates the database tables and indexes
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS traps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		device_id TEXT NOT NULL,
		trap_oid TEXT NOT NULL,
		severity TEXT DEFAULT 'info',
		message TEXT,
		varbinds TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create traps table: %w", err)
	}

	// Create indexes if enabled
	if s.config.EnableIndexes {
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_traps_timestamp ON traps(timestamp);",
			"CREATE INDEX IF NOT EXISTS idx_traps_device_id ON traps(device_id);",
			"CREATE INDEX IF NOT EXISTS idx_traps_trap_oid ON traps(trap_oid);",
			"CREATE INDEX IF NOT EXISTS idx_traps_severity ON traps(severity);",
		}

		for _, idx := range indexes {
			if _, err := s.db.Exec(idx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}
	}

	return nil
}

// StoreTrap stores a single trap event (adds to batch queue)
func (s *Storage) StoreTrap(event dispatch.TrapEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.eventToRecord(event)
	if err != nil {
		return fmt.Errorf("failed to convert trap event: %w", err)
	}

	s.batchQueue = append(s.batchQueue, record)

	// Flush if batch is full
	if len(s.batchQueue) >= s.config.BatchSize {
		return s.flushBatch()
	}

	return nil
}

// StoreTrapImmediate stores a single trap event immediately and returns the record ID
func (s *Storage) StoreTrapImmediate(event dispatch.TrapEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.eventToRecord(event)
	if err != nil {
		return 0, fmt.Errorf("failed to convert trap event: %w", err)
	}

	result, err := s.db.Exec(`
		INSERT INTO traps (timestamp, device_id, trap_oid, severity, message, varbinds)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.Timestamp, record.DeviceID, record.TrapOID, record.Severity,
		record.Message, record.Varbinds)

	if err != nil {
		return 0, fmt.Errorf("failed to insert trap: %w", err)
	}

	recordID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return recordID, nil
}

// eventToRecord converts a dispatched trap event to a storage record
func (s *Storage) eventToRecord(event dispatch.TrapEvent) (*TrapRecord, error) {
	varbindsJSON, err := json.Marshal(event.Varbinds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal varbinds: %w", err)
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	severity := string(event.Severity)
	if severity == "" {
		severity = string(dispatch.SeverityInfo)
	}

	record := &TrapRecord{
		Timestamp: timestamp,
		DeviceID:  event.DeviceID,
		TrapOID:   event.TrapOID,
		Severity:  severity,
		Message:   event.Message,
		Varbinds:  string(varbindsJSON),
	}

	return record, nil
}

// flushBatch flushes the current batch to database
func (s *Storage) flushBatch() error {
	if len(s.batchQueue) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO traps (timestamp, device_id, trap_oid, severity, message, varbinds)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range s.batchQueue {
		_, err := stmt.Exec(
			record.Timestamp, record.DeviceID, record.TrapOID,
			record.Severity, record.Message, record.Varbinds,
		)
		if err != nil {
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Clear batch queue
	s.batchQueue = s.batchQueue[:0]
	return nil
}

// batchWorker periodically flushes batched traps
func (s *Storage) batchWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			// Final flush before shutdown
			s.mu.Lock()
			s.flushBatch()
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.mu.Lock()
			if len(s.batchQueue) > 0 {
				s.flushBatch()
			}
			s.mu.Unlock()
		}
	}
}

// cleanupWorker periodically removes old traps based on retention policy
func (s *Storage) cleanupWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(24 * time.Hour) // Run daily
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes traps older than the retention period
func (s *Storage) cleanup() {
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	if _, err := s.db.Exec("DELETE FROM traps WHERE timestamp < ?", cutoff); err != nil {
		return
	}
}

// QueryTraps queries stored traps based on the provided criteria
func (s *Storage) QueryTraps(query *TrapQuery) ([]*TrapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sqlQuery := "SELECT id, timestamp, device_id, trap_oid, severity, message, varbinds, created_at FROM traps WHERE 1=1"
	args := []interface{}{}

	if query.StartTime != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, *query.StartTime)
	}

	if query.EndTime != nil {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, *query.EndTime)
	}

	if query.DeviceID != "" {
		sqlQuery += " AND device_id = ?"
		args = append(args, query.DeviceID)
	}

	if query.TrapOID != "" {
		sqlQuery += " AND trap_oid = ?"
		args = append(args, query.TrapOID)
	}

	if query.Severity != "" {
		sqlQuery += " AND severity = ?"
		args = append(args, query.Severity)
	}

	if query.OrderDesc {
		sqlQuery += " ORDER BY timestamp DESC"
	} else {
		sqlQuery += " ORDER BY timestamp ASC"
	}

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	if query.Offset > 0 {
		sqlQuery += " OFFSET ?"
		args = append(args, query.Offset)
	}

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query traps: %w", err)
	}
	defer rows.Close()

	var records []*TrapRecord
	for rows.Next() {
		record := &TrapRecord{}
		err := rows.Scan(
			&record.ID, &record.Timestamp, &record.DeviceID, &record.TrapOID,
			&record.Severity, &record.Message, &record.Varbinds, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trap record: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// GetTrap retrieves a single trap record by ID
func (s *Storage) GetTrap(id int64) (*TrapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record := &TrapRecord{}
	err := s.db.QueryRow(
		"SELECT id, timestamp, device_id, trap_oid, severity, message, varbinds, created_at FROM traps WHERE id = ?", id,
	).Scan(
		&record.ID, &record.Timestamp, &record.DeviceID, &record.TrapOID,
		&record.Severity, &record.Message, &record.Varbinds, &record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("trap record not found")
		}
		return nil, fmt.Errorf("failed to get trap record: %w", err)
	}

	return record, nil
}

// GetStats returns trap history statistics
func (s *Storage) GetStats() (*StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &StorageStats{
		SeverityBreakdown: make(map[string]int64),
		DeviceBreakdown:   make(map[string]int64),
	}

	// Get total traps
	err := s.db.QueryRow("SELECT COUNT(*) FROM traps").Scan(&stats.TotalTraps)
	if err != nil {
		return nil, fmt.Errorf("failed to get total traps: %w", err)
	}

	// Get traps today
	today := time.Now().Truncate(24 * time.Hour)
	err = s.db.QueryRow("SELECT COUNT(*) FROM traps WHERE timestamp >= ?", today).Scan(&stats.TrapsToday)
	if err != nil {
		return nil, fmt.Errorf("failed to get traps today: %w", err)
	}

	// Get oldest and newest traps
	var oldestTime, newestTime sql.NullTime
	err = s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM traps").Scan(&oldestTime, &newestTime)
	if err == nil {
		if oldestTime.Valid {
			stats.OldestTrap = &oldestTime.Time
		}
		if newestTime.Valid {
			stats.NewestTrap = &newestTime.Time
		}
	}

	// Severity breakdown
	rows, err := s.db.Query("SELECT severity, COUNT(*) FROM traps GROUP BY severity")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var severity string
			var count int64
			if err := rows.Scan(&severity, &count); err == nil {
				stats.SeverityBreakdown[severity] = count
			}
		}
	}

	// Device breakdown
	deviceRows, err := s.db.Query("SELECT device_id, COUNT(*) FROM traps GROUP BY device_id")
	if err == nil {
		defer deviceRows.Close()
		for deviceRows.Next() {
			var deviceID string
			var count int64
			if err := deviceRows.Scan(&deviceID, &count); err == nil {
				stats.DeviceBreakdown[deviceID] = count
			}
		}
	}

	return stats, nil
}

// Close closes the trap history store
func (s *Storage) Close() error {
	s.cancel()
	s.wg.Wait()

	// Final flush
	s.mu.Lock()
	s.flushBatch()
	s.mu.Unlock()

	return s.db.Close()
}
