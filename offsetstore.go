package pgwalreceiver

// OffsetStore persists the last committed LSN between runs. It is owned
// by the surrounding pipeline framework; this library only reads it when
// resolving a start position and hands freshly committed positions back.
//
// GetOffset returns an empty string when no offset has been stored yet.
type OffsetStore interface {
	SetOffset(lsn, slot string) error
	GetOffset(slot string) string
}
