// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tidal

// Constants of the accounting protocol.
const (
	// WAD is the fixed-point unit. A magnitude or scaling factor of 1e18 means 100%.
	WAD = uint64(1e18)

	// GrainsPerToken is the number of minor units per whole token tracked by checkpoints.
	GrainsPerToken = uint64(1e9)

	initialAllocationDelay   = uint32(75)
	initialDeallocationDelay = uint32(100)
	initialWithdrawalDelay   = uint32(100)
)

// NativeStrategy is the asset class fed by checkpoint reconciliation.
// It is the only dual-source class: its slashing factor compounds the
// operator magnitude with the externally reported penalty factor.
var NativeStrategy = BytesToBytes32([]byte("native-balance-strategy"))

var (
	allocationDelay   = initialAllocationDelay
	deallocationDelay = initialDeallocationDelay
	withdrawalDelay   = initialWithdrawalDelay
)

// AllocationDelay returns the number of blocks before an increased
// allocation becomes slashable.
func AllocationDelay() uint32 {
	return allocationDelay
}

// SetAllocationDelay overrides the allocation delay. For config/test use.
func SetAllocationDelay(blocks uint32) {
	allocationDelay = blocks
}

// DeallocationDelay returns the number of blocks a deallocation remains
// slashable before it matures.
func DeallocationDelay() uint32 {
	return deallocationDelay
}

// SetDeallocationDelay overrides the deallocation delay. For config/test use.
func SetDeallocationDelay(blocks uint32) {
	deallocationDelay = blocks
}

// WithdrawalDelay returns the number of blocks a queued withdrawal stays
// penalty-exposed before it becomes completable.
func WithdrawalDelay() uint32 {
	return withdrawalDelay
}

// SetWithdrawalDelay overrides the withdrawal delay. For config/test use.
func SetWithdrawalDelay(blocks uint32) {
	withdrawalDelay = blocks
}
