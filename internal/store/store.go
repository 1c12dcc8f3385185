package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"backhaul/internal/config"
)

// Store manages the partitioned local database.
type Store struct {
	db   *sql.DB
	path string
}

// Record is one key/value entry read back from a partition.
type Record struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the store database using config paths.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.StorePath())
}

// OpenPath initializes or connects to the store database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %w", ErrUnavailable, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: apply pragma %q: %w", ErrUnavailable, pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// CreatePartition registers a partition, creating it if absent.
func (s *Store) CreatePartition(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: partition name must not be empty", ErrValidation)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithRetry(
		ctx,
		`INSERT INTO partitions (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name,
		timestamp,
	); err != nil {
		return fmt.Errorf("create partition %q: %w", name, classifyWriteError(err))
	}
	return nil
}

// EnsurePartitions registers every named partition.
func (s *Store) EnsurePartitions(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := s.CreatePartition(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Partitions lists registered partition names in creation order.
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT name FROM partitions ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) hasPartition(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM partitions WHERE name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check partition %q: %w", name, err)
	}
	return count > 0, nil
}

// Get reads a single record. It returns nil when the key is absent.
func (s *Store) Get(ctx context.Context, partition, key string) (*Record, error) {
	exists, err := s.hasPartition(ctx, partition)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrPartitionNotFound, partition)
	}

	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT key, value, created_at, updated_at FROM records WHERE partition = ? AND key = ?`,
		partition, key,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// GetAllRaw bulk-reads every record in a partition, ordered by insertion time.
// It is the hydration read path and runs outside any transaction.
func (s *Store) GetAllRaw(ctx context.Context, partition string) ([]Record, error) {
	exists, err := s.hasPartition(ctx, partition)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrPartitionNotFound, partition)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT key, value, created_at, updated_at FROM records WHERE partition = ? ORDER BY created_at, key`,
		partition,
	)
	if err != nil {
		return nil, fmt.Errorf("read partition %q: %w", partition, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// GetAll bulk-reads a partition, decoding each JSON value into T.
func GetAll[T any](ctx context.Context, s *Store, partition string) ([]T, error) {
	records, err := s.GetAllRaw(ctx, partition)
	if err != nil {
		return nil, err
	}
	values := make([]T, 0, len(records))
	for _, record := range records {
		var value T
		if err := json.Unmarshal(record.Value, &value); err != nil {
			return nil, fmt.Errorf("%w: decode record %q: %w", ErrValidation, record.Key, err)
		}
		values = append(values, value)
	}
	return values, nil
}

// Count returns the number of records in a partition.
func (s *Store) Count(ctx context.Context, partition string) (int, error) {
	exists, err := s.hasPartition(ctx, partition)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: %q", ErrPartitionNotFound, partition)
	}

	var count int
	err = s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM records WHERE partition = ?`, partition,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count partition %q: %w", partition, err)
	}
	return count, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		key        string
		value      []byte
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&key, &value, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &Record{Key: key, Value: value}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func classifyWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case isSQLiteFull(err):
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	case isSQLiteConstraint(err):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}
