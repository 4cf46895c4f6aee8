package pgwalreceiver

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgio"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T, position string) *StreamSession {
	t.Helper()
	return &StreamSession{
		logger:                     testLogger(),
		slotName:                   "test_slot",
		statusInterval:             time.Minute,
		clientXLogPos:              mustLSN(t, position),
		nextStandbyMessageDeadline: time.Now().Add(time.Minute),
	}
}

func xLogDataFrame(walStart pglogrepl.LSN, payload []byte) *pgproto3.CopyData {
	data := []byte{pglogrepl.XLogDataByteID}
	data = pgio.AppendUint64(data, uint64(walStart))
	data = pgio.AppendUint64(data, uint64(walStart)+uint64(len(payload)))
	data = pgio.AppendInt64(data, 0)
	data = append(data, payload...)
	return &pgproto3.CopyData{Data: data}
}

func keepaliveFrame(serverWALEnd pglogrepl.LSN, replyRequested bool) *pgproto3.CopyData {
	data := []byte{pglogrepl.PrimaryKeepaliveMessageByteID}
	data = pgio.AppendUint64(data, uint64(serverWALEnd))
	data = pgio.AppendInt64(data, 0)
	reply := byte(0)
	if replyRequested {
		reply = 1
	}
	return &pgproto3.CopyData{Data: append(data, reply)}
}

func TestHandleXLogDataAdvancesPosition(t *testing.T) {
	s := testSession(t, "0/100")
	payload := []byte(`{"change":[]}`)

	msg, err := s.handleMessage(context.Background(), xLogDataFrame(mustLSN(t, "0/150"), payload))
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, payload, msg.Data)
	assert.Equal(t, mustLSN(t, "0/150"), msg.WALStart)
	assert.Equal(t, mustLSN(t, "0/150")+pglogrepl.LSN(len(payload)), s.CurrentPosition())
}

func TestHandleXLogDataNeverRegressesPosition(t *testing.T) {
	s := testSession(t, "0/500")

	msg, err := s.handleMessage(context.Background(), xLogDataFrame(mustLSN(t, "0/100"), []byte("x")))
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, mustLSN(t, "0/500"), s.CurrentPosition())
}

func TestHandleKeepaliveWithoutReplyRequest(t *testing.T) {
	s := testSession(t, "0/100")

	msg, err := s.handleMessage(context.Background(), keepaliveFrame(mustLSN(t, "0/400"), false))
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, mustLSN(t, "0/100"), s.CurrentPosition())
}

func TestHandleErrorResponse(t *testing.T) {
	s := testSession(t, "0/100")

	_, err := s.handleMessage(context.Background(), &pgproto3.ErrorResponse{
		Severity: "FATAL",
		Code:     "57P01",
		Message:  "terminating connection",
	})
	var readErr *StreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "test_slot", readErr.Slot)
}

func TestHandleUnexpectedMessageIsSkipped(t *testing.T) {
	s := testSession(t, "0/100")

	msg, err := s.handleMessage(context.Background(), &pgproto3.ReadyForQuery{TxStatus: 'I'})
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestHandleEmptyCopyDataIsSkipped(t *testing.T) {
	s := testSession(t, "0/100")

	msg, err := s.handleMessage(context.Background(), &pgproto3.CopyData{})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, mustLSN(t, "0/100"), s.CurrentPosition())
}

func TestReadPendingOnClosedSession(t *testing.T) {
	s := testSession(t, "0/100")
	s.closed = true

	_, err := s.ReadPending(context.Background())
	var readErr *StreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, errSessionClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := testSession(t, "0/100")

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.ErrorIs(t, s.sendStatusUpdate(context.Background(), pglogrepl.StandbyStatusUpdate{}), errSessionClosed)
}
