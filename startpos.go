package pgwalreceiver

import (
	"fmt"

	"github.com/jackc/pglogrepl"
)

// resolveStartPosition computes the LSN a freshly created slot should
// stream from. An existing slot already carries its own resume point
// server-side and never consults this.
//
// persisted is the offset the surrounding pipeline checkpointed on a
// previous run, empty when none exists. confirmedFlush is the slot's
// server-reported confirmed flush position. configured is the explicit
// target used by the EXPLICIT_LSN policy.
//
// Every policy path yields a usable LSN. An unrecognized policy is a
// programming error and panics.
func resolveStartPosition(policy StartOffsetPolicy, persisted, confirmedFlush string, configured pglogrepl.LSN) (pglogrepl.LSN, error) {
	switch policy {
	case StartLatest:
		// The caller's config validation keeps the persisted offset
		// empty for LATEST; a stale value that slips through is
		// tolerated and clamped to the confirmed flush position so we
		// never ask for already-recycled WAL.
		if persisted == "" {
			persisted = confirmedFlush
		}
		persistedLSN, err := pglogrepl.ParseLSN(persisted)
		if err != nil {
			return 0, fmt.Errorf("parse persisted offset %q: %w", persisted, err)
		}
		confirmedLSN, err := pglogrepl.ParseLSN(confirmedFlush)
		if err != nil {
			return 0, fmt.Errorf("parse confirmed flush lsn %q: %w", confirmedFlush, err)
		}
		if persistedLSN > confirmedLSN {
			return persistedLSN, nil
		}
		return confirmedLSN, nil

	case StartExplicitLSN:
		if persisted != "" {
			lsn, err := pglogrepl.ParseLSN(persisted)
			if err != nil {
				return 0, fmt.Errorf("parse persisted offset %q: %w", persisted, err)
			}
			return lsn, nil
		}
		return configured, nil

	case StartDateSeeded:
		if persisted != "" {
			lsn, err := pglogrepl.ParseLSN(persisted)
			if err != nil {
				return 0, fmt.Errorf("parse persisted offset %q: %w", persisted, err)
			}
			return lsn, nil
		}
		return seedLSN, nil

	default:
		panic(fmt.Sprintf("unknown start offset policy %q", policy))
	}
}
