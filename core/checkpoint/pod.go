// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package checkpoint

import (
	"github.com/tidalprotocol/tidal/tidal"
)

// Pod is the per-owner reconciliation account. At most one checkpoint
// is open at any time; Current is nil when idle.
type Pod struct {
	LastTimestamp   uint64      // timestamp of the last finalized checkpoint
	BalanceIncluded uint64      // execution balance already credited, monotonically non-decreasing
	Current         *Checkpoint `rlp:"nil"`
}

// Checkpoint is the ephemeral state of an open reconciliation round.
// It is absorbed into the pod when the last proof lands.
type Checkpoint struct {
	Timestamp       uint64        // reconciliation epoch, strictly increasing across rounds
	ReferenceRoot   tidal.Bytes32 // attestation anchor fixed at creation
	ProofsRemaining uint32        // only ever decreases; zero triggers finalize
	ExecSnapshot    uint64        // execution balance not yet credited, captured at start

	// balance movement accumulators; kept as unsigned increase/decrease
	// pairs so the record stays RLP-encodable
	PrevBalances uint64 // sum of pre-proof balances of proven sub-accounts
	DeltaGain    uint64 // sum of positive balance deltas
	DeltaLoss    uint64 // sum of negative balance delta magnitudes
	ExitedGrains uint64 // balances released by sub-accounts that exited this round
}

// NetDelta returns the accumulated balance delta of proven sub-accounts.
func (c *Checkpoint) NetDelta() int64 {
	return int64(c.DeltaGain) - int64(c.DeltaLoss)
}

// IsEmpty returns whether the pod record has never been written.
func (p *Pod) IsEmpty() bool {
	return p.LastTimestamp == 0 && p.BalanceIncluded == 0 && p.Current == nil
}

// Open returns whether a checkpoint is in progress.
func (p *Pod) Open() bool {
	return p.Current != nil
}
