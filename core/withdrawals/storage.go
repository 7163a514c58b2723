// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package withdrawals

import (
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	slotWithdrawals   = tidal.BytesToBytes32([]byte("withdrawals"))
	slotNonces        = tidal.BytesToBytes32([]byte("withdrawal-nonces"))
	slotPendingQueues = tidal.BytesToBytes32([]byte("pending-withdrawal-queues"))
)

// pendingRef indexes a queued withdrawal for the slash-time walk over
// one (operator, asset class) pair.
type pendingRef struct {
	Root          tidal.Bytes32
	CompletableAt uint32
}

type storage struct {
	context     *store.Context
	withdrawals *store.Mapping[tidal.Bytes32, Withdrawal]
	nonces      *store.Mapping[tidal.Address, uint64]
}

func newStorage(sctx *store.Context) *storage {
	return &storage{
		context:     sctx,
		withdrawals: store.NewMapping[tidal.Bytes32, Withdrawal](sctx, slotWithdrawals),
		nonces:      store.NewMapping[tidal.Address, uint64](sctx, slotNonces),
	}
}

func (s *storage) pendingQueue(operator tidal.Address, strategy tidal.Bytes32) *store.Queue[pendingRef] {
	pos := tidal.Blake2b(slotPendingQueues.Bytes(), operator.Bytes(), strategy.Bytes())
	return store.NewQueue[pendingRef](s.context, pos)
}

func (s *storage) getWithdrawal(root tidal.Bytes32) (*Withdrawal, bool, error) {
	has, err := s.withdrawals.Has(root)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to check withdrawal")
	}
	if !has {
		return nil, false, nil
	}
	w, err := s.withdrawals.Get(root)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to get withdrawal")
	}
	return &w, true, nil
}

func (s *storage) setWithdrawal(root tidal.Bytes32, w *Withdrawal) error {
	if err := s.withdrawals.Set(root, *w); err != nil {
		return errors.Wrap(err, "failed to set withdrawal")
	}
	return nil
}

func (s *storage) deleteWithdrawal(root tidal.Bytes32) error {
	if err := s.withdrawals.Delete(root); err != nil {
		return errors.Wrap(err, "failed to delete withdrawal")
	}
	return nil
}

func (s *storage) nextNonce(staker tidal.Address) (uint64, error) {
	nonce, err := s.nonces.Get(staker)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get withdrawal nonce")
	}
	if err := s.nonces.Set(staker, nonce+1); err != nil {
		return 0, errors.Wrap(err, "failed to set withdrawal nonce")
	}
	return nonce, nil
}
