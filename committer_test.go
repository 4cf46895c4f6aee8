package pgwalreceiver

import (
	"context"
	"testing"

	"github.com/jackc/pglogrepl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusSession struct {
	pos     pglogrepl.LSN
	updates []pglogrepl.StandbyStatusUpdate
	err     error
}

func (f *fakeStatusSession) CurrentPosition() pglogrepl.LSN { return f.pos }

func (f *fakeStatusSession) sendStatusUpdate(_ context.Context, update pglogrepl.StandbyStatusUpdate) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, update)
	return nil
}

type memOffsetStore struct {
	offsets map[string]string
	err     error
}

func (s *memOffsetStore) SetOffset(lsn, slot string) error {
	if s.err != nil {
		return s.err
	}
	if s.offsets == nil {
		s.offsets = map[string]string{}
	}
	s.offsets[slot] = lsn
	return nil
}

func (s *memOffsetStore) GetOffset(slot string) string {
	return s.offsets[slot]
}

func TestCommitAcknowledgesCurrentPosition(t *testing.T) {
	session := &fakeStatusSession{pos: mustLSN(t, "0/16B3748")}
	store := &memOffsetStore{}
	committer := newOffsetCommitter("test_slot", session, store, testLogger())

	pos, err := committer.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.pos, pos)

	require.Len(t, session.updates, 1)
	update := session.updates[0]
	assert.Equal(t, session.pos, update.WALWritePosition)
	assert.Equal(t, session.pos, update.WALFlushPosition)
	assert.Equal(t, session.pos, update.WALApplyPosition)

	assert.Equal(t, session.pos.String(), store.GetOffset("test_slot"))
}

func TestCommitNeverRegresses(t *testing.T) {
	session := &fakeStatusSession{pos: mustLSN(t, "0/200")}
	committer := newOffsetCommitter("test_slot", session, nil, testLogger())

	first, err := committer.Commit(context.Background())
	require.NoError(t, err)

	// A session position behind the last commit must not move the
	// acknowledgement backwards.
	session.pos = mustLSN(t, "0/100")
	second, err := committer.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	session.pos = mustLSN(t, "0/300")
	third, err := committer.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.pos, third)
	assert.Equal(t, third, committer.LastCommitted())
}

func TestCommitSurfacesStatusUpdateFailure(t *testing.T) {
	session := &fakeStatusSession{pos: mustLSN(t, "0/200"), err: assert.AnError}
	committer := newOffsetCommitter("test_slot", session, nil, testLogger())

	_, err := committer.Commit(context.Background())
	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, "test_slot", commitErr.Slot)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, committer.LastCommitted())
}

func TestCommitToleratesOffsetStoreFailure(t *testing.T) {
	session := &fakeStatusSession{pos: mustLSN(t, "0/200")}
	store := &memOffsetStore{err: assert.AnError}
	committer := newOffsetCommitter("test_slot", session, store, testLogger())

	pos, err := committer.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.pos, pos)
}
