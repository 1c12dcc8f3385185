package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects the access level of a transaction.
type Mode int

const (
	ModeReadOnly Mode = iota
	ModeReadWrite
)

type mutationKind int

const (
	mutationAdd mutationKind = iota
	mutationPut
	mutationDelete
	mutationClear
)

type mutation struct {
	kind      mutationKind
	partition string
	key       string
	value     []byte
}

// Tx is an ephemeral write batch scoped to a set of partitions. Mutations are
// queued in memory and applied atomically at Commit; after Commit or Abort the
// handle is invalid.
type Tx struct {
	store     *Store
	mode      Mode
	scope     map[string]struct{}
	mutations []mutation
	done      bool
}

// Begin opens a transaction scoped to the named partitions. Every partition
// must already exist.
func (s *Store) Begin(ctx context.Context, mode Mode, partitions ...string) (*Tx, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("%w: transaction requires at least one partition", ErrValidation)
	}

	scope := make(map[string]struct{}, len(partitions))
	for _, partition := range partitions {
		exists, err := s.hasPartition(ctx, partition)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %q", ErrPartitionNotFound, partition)
		}
		scope[partition] = struct{}{}
	}

	return &Tx{store: s, mode: mode, scope: scope}, nil
}

func (t *Tx) queue(kind mutationKind, partition, key string, value []byte) error {
	if t.done {
		return ErrTxDone
	}
	if t.mode != ModeReadWrite {
		return ErrReadOnly
	}
	if _, ok := t.scope[partition]; !ok {
		return fmt.Errorf("%w: %q not in transaction scope", ErrPartitionNotFound, partition)
	}
	t.mutations = append(t.mutations, mutation{kind: kind, partition: partition, key: key, value: value})
	return nil
}

// Add queues an insert. Commit fails with a validation error when the key
// already exists in the partition.
func (t *Tx) Add(partition, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrValidation)
	}
	return t.queue(mutationAdd, partition, key, value)
}

// Put queues an upsert.
func (t *Tx) Put(partition, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrValidation)
	}
	return t.queue(mutationPut, partition, key, value)
}

// Delete queues removal of a single key. Deleting an absent key is not an error.
func (t *Tx) Delete(partition, key string) error {
	return t.queue(mutationDelete, partition, key, nil)
}

// Clear queues removal of every record in a partition.
func (t *Tx) Clear(partition string) error {
	return t.queue(mutationClear, partition, "", nil)
}

// Abort discards all queued mutations and invalidates the handle.
func (t *Tx) Abort() {
	t.done = true
	t.mutations = nil
}

// Commit applies queued mutations atomically and invalidates the handle.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	if len(t.mutations) == 0 {
		return nil
	}

	for _, m := range t.mutations {
		if m.kind == mutationAdd || m.kind == mutationPut {
			if !json.Valid(m.value) {
				return fmt.Errorf("%w: value for key %q is not valid JSON", ErrValidation, m.key)
			}
		}
	}

	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, func() error {
		return t.applyOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("commit transaction: %w", classifyWriteError(err))
	}
	return nil
}

func (t *Tx) applyOnce(ctx context.Context) error {
	sqlTx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	for _, m := range t.mutations {
		switch m.kind {
		case mutationAdd:
			_, err = sqlTx.ExecContext(ctx,
				`INSERT INTO records (partition, key, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				m.partition, m.key, m.value, timestamp, timestamp,
			)
		case mutationPut:
			_, err = sqlTx.ExecContext(ctx,
				`INSERT INTO records (partition, key, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
                 ON CONFLICT(partition, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				m.partition, m.key, m.value, timestamp, timestamp,
			)
		case mutationDelete:
			_, err = sqlTx.ExecContext(ctx,
				`DELETE FROM records WHERE partition = ? AND key = ?`,
				m.partition, m.key,
			)
		case mutationClear:
			_, err = sqlTx.ExecContext(ctx,
				`DELETE FROM records WHERE partition = ?`,
				m.partition,
			)
		}
		if err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}
