// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package withdrawals implements the delay-gated withdrawal queue with
// in-window penalty exposure. A withdrawal stays slashable until its
// completable block, and only until then.
package withdrawals

import (
	"math/big"

	"github.com/tidalprotocol/tidal/reverts"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
	"github.com/tidalprotocol/tidal/wad"
)

var wadBig = new(big.Int).SetUint64(tidal.WAD)

// Service manages queued withdrawals.
type Service struct {
	storage *storage
}

// New creates the withdrawal queue service bound to sctx.
func New(sctx *store.Context) *Service {
	return &Service{storage: newStorage(sctx)}
}

// Get returns the withdrawal stored under root, if any.
func (s *Service) Get(root tidal.Bytes32) (*Withdrawal, bool, error) {
	return s.storage.getWithdrawal(root)
}

// Queue records a new withdrawal of already-scaled shares and returns
// it together with its root. Delegated withdrawals are indexed per
// (operator, asset class) so later penalties can reach them while the
// delay runs.
func (s *Service) Queue(
	staker, operator tidal.Address,
	strategy tidal.Bytes32,
	scaledShares *big.Int,
	factorAtQueue uint64,
	nowBlock, delay uint32,
) (*Withdrawal, error) {
	if scaledShares.Sign() <= 0 {
		return nil, reverts.New("nothing to withdraw")
	}
	nonce, err := s.storage.nextNonce(staker)
	if err != nil {
		return nil, err
	}
	w := &Withdrawal{
		Staker:        staker,
		Operator:      operator,
		Strategy:      strategy,
		ScaledShares:  scaledShares,
		FactorAtQueue: factorAtQueue,
		SlashedScaled: new(big.Int),
		QueuedAt:      nowBlock,
		CompletableAt: nowBlock + delay,
		Nonce:         nonce,
	}
	if err := s.storage.setWithdrawal(w.Root(), w); err != nil {
		return nil, err
	}
	if !operator.IsZero() {
		queue := s.storage.pendingQueue(operator, strategy)
		if _, err := queue.Push(pendingRef{Root: w.Root(), CompletableAt: w.CompletableAt}); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// ApplyWindowSlash charges every still-pending withdrawal of the
// operator for a magnitude cut from prevMax to newMax. Matured entries
// are dropped from the index first, a completable withdrawal is out of
// reach. Returns the total scaled shares slashed across the window.
func (s *Service) ApplyWindowSlash(
	operator tidal.Address,
	strategy tidal.Bytes32,
	prevMax, newMax uint64,
	nowBlock uint32,
) (*big.Int, error) {
	total := new(big.Int)
	if prevMax == 0 || newMax >= prevMax {
		return total, nil
	}
	queue := s.storage.pendingQueue(operator, strategy)
	for {
		length, err := queue.Len()
		if err != nil {
			return nil, err
		}
		if length == 0 {
			break
		}
		head, err := queue.Head()
		if err != nil {
			return nil, err
		}
		front, err := queue.Get(head)
		if err != nil {
			return nil, err
		}
		if front.CompletableAt > nowBlock {
			break
		}
		if _, err := queue.PopFront(); err != nil {
			return nil, err
		}
	}

	cut := new(big.Int).SetUint64(prevMax - newMax)
	prev := new(big.Int).SetUint64(prevMax)
	err := queue.Iterate(func(_ uint64, ref pendingRef) (bool, error) {
		if ref.CompletableAt <= nowBlock {
			return true, nil
		}
		w, found, err := s.storage.getWithdrawal(ref.Root)
		if err != nil {
			return false, err
		}
		if !found {
			return true, nil
		}
		slashed := wad.MulDiv(w.ScaledShares, cut, prev)
		exposure := new(big.Int).Sub(w.ScaledShares, w.SlashedScaled)
		if slashed.Cmp(exposure) > 0 {
			slashed = exposure
		}
		if slashed.Sign() <= 0 {
			return true, nil
		}
		w.SlashedScaled = new(big.Int).Add(w.SlashedScaled, slashed)
		if err := s.storage.setWithdrawal(ref.Root, w); err != nil {
			return false, err
		}
		total.Add(total, slashed)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// Complete settles a matured withdrawal and removes it. The paid
// amount uses the penalty factor captured at queue time, minus any
// in-window slash converted back through the staker's current scaling
// factor, floored at zero.
func (s *Service) Complete(root tidal.Bytes32, nowBlock uint32, currentScalingFactor *big.Int) (*big.Int, error) {
	w, found, err := s.storage.getWithdrawal(root)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, reverts.New("withdrawal not found")
	}
	if nowBlock < w.CompletableAt {
		return nil, reverts.New("withdrawal delay has not elapsed")
	}
	paid := wad.MulWad(w.ScaledShares, w.FactorAtQueue)
	if w.SlashedScaled.Sign() > 0 {
		penalty := wad.MulDiv(w.SlashedScaled, currentScalingFactor, wadBig)
		paid.Sub(paid, penalty)
		if paid.Sign() < 0 {
			paid.SetUint64(0)
		}
	}
	if err := s.storage.deleteWithdrawal(root); err != nil {
		return nil, err
	}
	return paid, nil
}

// PendingCount is the number of index entries for one operator pair,
// matured-but-unpopped entries included.
func (s *Service) PendingCount(operator tidal.Address, strategy tidal.Bytes32) (uint64, error) {
	return s.storage.pendingQueue(operator, strategy).Len()
}
