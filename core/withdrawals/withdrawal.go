// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package withdrawals

import (
	"encoding/binary"
	"math/big"

	"github.com/tidalprotocol/tidal/tidal"
)

// Withdrawal is a queued exit of deposit shares. ScaledShares and
// FactorAtQueue freeze the staker's position at queue time; penalties
// landing during the delay window accumulate in SlashedScaled and are
// settled at completion.
type Withdrawal struct {
	Staker        tidal.Address
	Operator      tidal.Address
	Strategy      tidal.Bytes32
	ScaledShares  *big.Int
	FactorAtQueue uint64
	SlashedScaled *big.Int
	QueuedAt      uint32
	CompletableAt uint32
	Nonce         uint64
}

// Root derives the unique identifier of the withdrawal. Nonce makes
// repeated withdrawals by the same staker distinct.
func (w *Withdrawal) Root() tidal.Bytes32 {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], w.Nonce)
	return tidal.Blake2b(
		w.Staker.Bytes(),
		w.Operator.Bytes(),
		w.Strategy.Bytes(),
		nonce[:],
	)
}
