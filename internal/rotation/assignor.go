// Package rotation resolves which team member a chosen slot is committed to.
//
// Slot generation advertises the union of hosts a slot could belong to; the
// binding choice is made here, at commit time, against busy data re-read
// inside the commit transaction. The caller persists the returned cursor in
// the same transaction as the booking write or not at all.
package rotation

import (
	"errors"
	"slices"

	"github.com/WolfCon2023/apptbook/internal/availability"
)

// ErrNoHostAvailable means every team member was either ineligible for the
// slot or already reserved over it. Terminal for this slot: the caller must
// not fall back to an ineligible host, only regenerate.
var ErrNoHostAvailable = errors.New("no host available for slot")

// Assign scans the team in rotation order starting at cfg.RotationCursor,
// wrapping around, and returns the first host that is eligible for the slot
// and whose busy spans do not overlap the slot's buffered span. The second
// return is the advanced cursor, (foundIndex+1) mod teamSize; on failure the
// cursor comes back unchanged.
//
// busy must reflect the state read inside the commit transaction, not the
// snapshot slots were generated from.
func Assign(cfg availability.TypeConfig, slot availability.Slot, busy map[string][]availability.Interval) (string, int, error) {
	n := len(cfg.HostIDs)
	if n == 0 {
		return "", cfg.RotationCursor, ErrNoHostAvailable
	}
	span := cfg.BufferedSpan(slot.Start)
	start := cfg.RotationCursor % n
	if start < 0 {
		start += n
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		h := cfg.HostIDs[idx]
		if !slices.Contains(slot.HostIDs, h) {
			continue
		}
		if span.OverlapsAny(busy[h]) {
			continue
		}
		return h, (idx + 1) % n, nil
	}
	return "", cfg.RotationCursor, ErrNoHostAvailable
}
