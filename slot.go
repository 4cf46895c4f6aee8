package pgwalreceiver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const selectSlotQuery = "select * from pg_replication_slots where slot_name = $1"

const (
	defaultDropPollInterval = 100 * time.Millisecond
	defaultDropTimeout      = 30 * time.Second
)

// slotManager drives the lifecycle of one named logical replication slot:
// metadata refresh, existence check, creation and bounded-wait drop. Every
// operation opens its own short-lived control connection.
//
// Each refresh is a snapshot valid only at query time. Nothing prevents
// concurrent external administration of the same slot name; callers hold
// no lock between a check and the branch taken on it.
type slotManager struct {
	conns  *connManager
	logger *log.Logger

	// dropPollInterval and dropTimeout bound the deactivation wait
	// before a drop. Overridable so tests do not sit through the real
	// 30 second window.
	dropPollInterval time.Duration
	dropTimeout      time.Duration
}

func newSlotManager(conns *connManager, logger *log.Logger) *slotManager {
	return &slotManager{
		conns:            conns,
		logger:           logger,
		dropPollInterval: defaultDropPollInterval,
		dropTimeout:      defaultDropTimeout,
	}
}

// RefreshSlotInfo queries pg_replication_slots for the named slot and
// returns a full snapshot. Older servers have no confirmed_flush_lsn
// column; restart_lsn stands in for it then. A missing row yields a
// zero-valued snapshot whose Plugin is empty.
func (m *slotManager) RefreshSlotInfo(ctx context.Context, name string) (ReplicationSlot, error) {
	slot := ReplicationSlot{Name: name}

	err := m.conns.withControlConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, selectSlotQuery, name)
		if err != nil {
			return err
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return err
		}

		if !hasColumn(columns, "confirmed_flush_lsn") {
			m.logger.Debug("no confirmed_flush_lsn column found, using restart_lsn", "slot", name)
		}

		for rows.Next() {
			holders := make([]any, len(columns))
			for i := range holders {
				holders[i] = new(any)
			}
			if err = rows.Scan(holders...); err != nil {
				return err
			}

			values := make([]any, len(columns))
			for i := range holders {
				values[i] = *(holders[i].(*any))
			}
			slot = slotFromRow(name, columns, values)
		}
		return rows.Err()
	})
	if err != nil {
		return ReplicationSlot{}, &SlotMetadataError{Slot: name, Err: err}
	}
	return slot, nil
}

// SlotExists reports whether the slot is present on the server. A set
// plugin in the refreshed snapshot is the existence signal.
func (m *slotManager) SlotExists(ctx context.Context, name string) (bool, error) {
	slot, err := m.RefreshSlotInfo(ctx, name)
	if err != nil {
		return false, err
	}
	return slot.Exists(), nil
}

// IsSlotActive reports whether a live backend currently holds the slot.
func (m *slotManager) IsSlotActive(ctx context.Context, name string) (bool, error) {
	slot, err := m.RefreshSlotInfo(ctx, name)
	if err != nil {
		return false, err
	}
	return slot.Active, nil
}

// CreateSlot creates the logical slot with the configured decoder plugin
// and verifies the slot name the server echoes back.
func (m *slotManager) CreateSlot(ctx context.Context, name, plugin string) error {
	err := m.conns.withControlConn(ctx, func(db *sql.DB) error {
		var createdName, consistentPoint string
		row := db.QueryRowContext(ctx, "SELECT * FROM pg_create_logical_replication_slot($1, $2)", name, plugin)
		if err := row.Scan(&createdName, &consistentPoint); err != nil {
			return err
		}
		if err := verifyCreatedSlotName(name, createdName); err != nil {
			return err
		}
		m.logger.Info("created replication slot", "slot", createdName, "plugin", plugin, "consistent_point", consistentPoint)
		return nil
	})
	if err != nil {
		var mismatch *SlotCreationMismatchError
		if errors.As(err, &mismatch) {
			return err
		}
		return &SlotCreationError{Slot: name, Err: err}
	}
	return nil
}

// DropSlot removes the slot. The server refuses to drop a slot a live
// backend still holds open, so an active slot first has its backend
// terminated, then activity is polled until it clears or the wait times
// out. On timeout the slot is left untouched.
func (m *slotManager) DropSlot(ctx context.Context, name string) error {
	isActive := func(ctx context.Context) (bool, error) {
		return m.IsSlotActive(ctx, name)
	}
	return m.conns.withControlConn(ctx, func(db *sql.DB) error {
		active, err := isActive(ctx)
		if err != nil {
			return err
		}
		if active {
			_, err = db.ExecContext(ctx,
				"select pg_terminate_backend(active_pid) from pg_replication_slots where active = true and slot_name = $1", name)
			if err != nil {
				return fmt.Errorf("terminate backend for slot %q: %w", name, err)
			}
			if err = m.waitInactive(ctx, name, isActive); err != nil {
				return err
			}
		}

		_, err = db.ExecContext(ctx,
			"select pg_drop_replication_slot(slot_name) from pg_replication_slots where slot_name = $1", name)
		if err != nil {
			return fmt.Errorf("drop replication slot %q: %w", name, err)
		}
		m.logger.Info("dropped replication slot", "slot", name)
		return nil
	})
}

// waitInactive polls slot activity until it clears or the drop timeout
// elapses. The activity check is passed in so tests can simulate a slot
// that never deactivates without real waits.
func (m *slotManager) waitInactive(ctx context.Context, name string, isActive func(context.Context) (bool, error)) error {
	start := time.Now()
	for {
		active, err := isActive(ctx)
		if err != nil {
			return err
		}
		if !active {
			return nil
		}
		if elapsed := time.Since(start); elapsed > m.dropTimeout {
			return &SlotDropTimeoutError{Slot: name, Elapsed: elapsed.Round(time.Millisecond)}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.dropPollInterval):
		}
	}
}

// slotFromRow maps one pg_replication_slots row onto a full snapshot.
// Older servers have no confirmed_flush_lsn column; restart_lsn stands in
// for the confirmed flush position then.
func slotFromRow(name string, columns []string, values []any) ReplicationSlot {
	byName := func(column string) any {
		for i, c := range columns {
			if c == column {
				return values[i]
			}
		}
		return nil
	}

	flushedColumn := "confirmed_flush_lsn"
	if !hasColumn(columns, flushedColumn) {
		flushedColumn = "restart_lsn"
	}

	return ReplicationSlot{
		Name:              name,
		Plugin:            columnString(byName("plugin")),
		SlotType:          columnString(byName("slot_type")),
		Active:            columnBool(byName("active")),
		ActivePID:         columnPID(byName("active_pid")),
		RestartLSN:        columnString(byName("restart_lsn")),
		ConfirmedFlushLSN: columnString(byName(flushedColumn)),
	}
}

// verifyCreatedSlotName checks the slot name the server echoed from a
// creation call against the requested one. A mismatch means the driver
// and server disagree about what was created and is fatal.
func verifyCreatedSlotName(requested, created string) error {
	if created != requested {
		return &SlotCreationMismatchError{Slot: requested, Got: created}
	}
	return nil
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

func columnString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []byte:
		return string(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func columnBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return value == "t" || value == "true"
	case []byte:
		return string(value) == "t" || string(value) == "true"
	default:
		return false
	}
}

func columnPID(v any) int32 {
	switch value := v.(type) {
	case int64:
		return int32(value)
	case int32:
		return value
	default:
		return 0
	}
}
