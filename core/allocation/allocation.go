// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package allocation

// OperatorMagnitude tracks an operator's allocatable capacity for one
// asset class. A never-written record defaults to the full WAD max.
type OperatorMagnitude struct {
	Max        uint64 // WAD-scaled total capacity, only ever decreased by slashing
	Encumbered uint64 // capacity committed to allocations, never exceeds Max
}

// Allocation is an operator's commitment of magnitude to one
// (penalty-domain, asset class) pair. At most one pending change
// exists at a time; Pending is nil when none.
type Allocation struct {
	Magnitude uint64       // currently effective, slashable magnitude
	Pending   *PendingDiff `rlp:"nil"`
}

// PendingDiff is a magnitude change awaiting its effect block.
// Direction is explicit so the record stays RLP-encodable.
type PendingDiff struct {
	Decrease    bool
	Amount      uint64
	EffectBlock uint32
}

// IsEmpty returns whether the allocation has never been written.
func (a *Allocation) IsEmpty() bool {
	return a.Magnitude == 0 && a.Pending == nil
}

// absorbMaturedIncrease makes a matured pending increase effective.
// Matured decreases are applied through the deallocation queue only,
// so clearing stays FIFO-ordered.
func (a *Allocation) absorbMaturedIncrease(now uint32) {
	if a.Pending == nil || a.Pending.Decrease {
		return
	}
	if a.Pending.EffectBlock > now {
		return
	}
	a.Magnitude += a.Pending.Amount
	a.Pending = nil
}

// deallocRef is an entry of the per-(operator, asset class) FIFO
// deallocation queue.
type deallocRef struct {
	Set         [32]byte
	EffectBlock uint32
}
