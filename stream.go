package pgwalreceiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
)

// receivePollTimeout bounds a single ReadPending receive attempt. It is
// the "non-blocking" budget: with no pending data the call returns after
// at most this long instead of waiting for the server.
const receivePollTimeout = 10 * time.Millisecond

var errSessionClosed = errors.New("stream session is closed")

// StreamSession wraps one live replication connection with one started
// logical stream. A closed session cannot be reopened; callers create a
// new one. The server enforces a single concurrent stream per slot, so no
// locking happens here.
type StreamSession struct {
	conn   *pgconn.PgConn
	logger *log.Logger

	slotName       string
	statusInterval time.Duration

	// clientXLogPos is the last received position, monotonically
	// non-decreasing for the life of the session.
	clientXLogPos              pglogrepl.LSN
	nextStandbyMessageDeadline time.Time
	closed                     bool
}

// openStreamSession dials the replication connection and starts the
// logical stream for the slot. A freshly created slot is seeded with
// startLSN; an existing slot resumes from its own stored position. The
// returned session's CurrentPosition is the initial received LSN for the
// caller's bookkeeping.
func openStreamSession(ctx context.Context, conns *connManager, logger *log.Logger, slot ReplicationSlot, isNewSlot bool, startLSN pglogrepl.LSN, statusInterval time.Duration) (*StreamSession, error) {
	conn, err := conns.openReplicationConn(ctx)
	if err != nil {
		return nil, err
	}

	sysident, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, &StreamReadError{Slot: slot.Name, Err: fmt.Errorf("identify system: %w", err)}
	}
	logger.Debug("identified system",
		"system_id", sysident.SystemID, "timeline", sysident.Timeline,
		"xlog_pos", sysident.XLogPos, "database", sysident.DBName)

	pluginArguments := []string{
		"\"include-xids\" 'true'",
		"\"include-timestamp\" 'true'",
		"\"include-lsn\" 'true'",
	}

	// An existing slot encodes its own resume point server-side; passing
	// the zero LSN lets the walsender pick it up.
	var startPos pglogrepl.LSN
	initialPos := sysident.XLogPos
	if isNewSlot {
		startPos = startLSN
		initialPos = startLSN
	} else if slot.ConfirmedFlushLSN != "" {
		if confirmed, parseErr := pglogrepl.ParseLSN(slot.ConfirmedFlushLSN); parseErr == nil {
			initialPos = confirmed
		}
	}

	err = pglogrepl.StartReplication(ctx, conn, slot.Name, startPos, pglogrepl.StartReplicationOptions{
		PluginArgs: pluginArguments,
	})
	if err != nil {
		_ = conn.Close(ctx)
		return nil, &StreamReadError{Slot: slot.Name, Err: fmt.Errorf("start replication: %w", err)}
	}
	logger.Info("logical replication started", "slot", slot.Name, "start_lsn", initialPos)

	return &StreamSession{
		conn:                       conn,
		logger:                     logger,
		slotName:                   slot.Name,
		statusInterval:             statusInterval,
		clientXLogPos:              initialPos,
		nextStandbyMessageDeadline: time.Now().Add(statusInterval),
	}, nil
}

// ReadPending attempts to read one pending unit of decoder output. It
// returns (nil, nil) when no data is available within the poll budget,
// so the owning loop stays free to interleave cancellation checks and
// commits between calls. Periodic standby status updates and keepalive
// replies are handled inside.
func (s *StreamSession) ReadPending(ctx context.Context) (*WalMessage, error) {
	if s.closed {
		return nil, &StreamReadError{Slot: s.slotName, Err: errSessionClosed}
	}

	for {
		if time.Now().After(s.nextStandbyMessageDeadline) {
			if err := s.sendStatusUpdate(ctx, pglogrepl.StandbyStatusUpdate{WALWritePosition: s.clientXLogPos}); err != nil {
				return nil, &StreamReadError{Slot: s.slotName, Err: fmt.Errorf("standby status update: %w", err)}
			}
			s.logger.Debug("sent standby status message", "position", s.clientXLogPos)
			s.nextStandbyMessageDeadline = time.Now().Add(s.statusInterval)
		}

		receiveCtx, cancel := context.WithTimeout(ctx, receivePollTimeout)
		rawMsg, err := s.conn.ReceiveMessage(receiveCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if pgconn.Timeout(err) {
				// Nothing pending right now.
				return nil, nil
			}
			return nil, &StreamReadError{Slot: s.slotName, Err: err}
		}

		walMsg, err := s.handleMessage(ctx, rawMsg)
		if err != nil {
			return nil, err
		}
		if walMsg != nil {
			return walMsg, nil
		}
		// Keepalive or non-copy message, keep draining.
	}
}

// handleMessage digests one backend message. A non-nil WalMessage is
// decoder output to hand to the caller; keepalives are answered here.
func (s *StreamSession) handleMessage(ctx context.Context, rawMsg pgproto3.BackendMessage) (*WalMessage, error) {
	if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
		return nil, &StreamReadError{Slot: s.slotName, Err: fmt.Errorf("postgres WAL error: %+v", errMsg)}
	}

	msg, ok := rawMsg.(*pgproto3.CopyData)
	if !ok {
		s.logger.Debug("received unexpected message", "type", fmt.Sprintf("%T", rawMsg))
		return nil, nil
	}
	if len(msg.Data) == 0 {
		s.logger.Debug("received empty copy data message")
		return nil, nil
	}

	switch msg.Data[0] {
	case pglogrepl.PrimaryKeepaliveMessageByteID:
		pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
		if err != nil {
			return nil, &StreamReadError{Slot: s.slotName, Err: fmt.Errorf("parse keepalive: %w", err)}
		}
		if pkm.ReplyRequested {
			if err = s.sendStatusUpdate(ctx, pglogrepl.StandbyStatusUpdate{WALWritePosition: s.clientXLogPos}); err != nil {
				return nil, &StreamReadError{Slot: s.slotName, Err: fmt.Errorf("standby status update: %w", err)}
			}
			s.nextStandbyMessageDeadline = time.Now().Add(s.statusInterval)
		}
		return nil, nil

	case pglogrepl.XLogDataByteID:
		xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
		if err != nil {
			return nil, &StreamReadError{Slot: s.slotName, Err: fmt.Errorf("parse xlog data: %w", err)}
		}
		if pos := xld.WALStart + pglogrepl.LSN(len(xld.WALData)); pos > s.clientXLogPos {
			s.clientXLogPos = pos
		}
		return &WalMessage{
			Data:         xld.WALData,
			WALStart:     xld.WALStart,
			ServerWALEnd: xld.ServerWALEnd,
			ServerTime:   xld.ServerTime,
		}, nil
	}

	return nil, nil
}

// CurrentPosition returns the last received LSN tracked by the session.
func (s *StreamSession) CurrentPosition() pglogrepl.LSN {
	return s.clientXLogPos
}

func (s *StreamSession) sendStatusUpdate(ctx context.Context, update pglogrepl.StandbyStatusUpdate) error {
	if s.closed {
		return errSessionClosed
	}
	return pglogrepl.SendStandbyStatusUpdate(ctx, s.conn, update)
}

// Close terminates the replication connection. The session is invalid
// afterwards and cannot be reopened.
func (s *StreamSession) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		return s.conn.Close(ctx)
	}
	return nil
}
