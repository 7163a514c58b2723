// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package allocation

import (
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	slotMagnitudes    = tidal.BytesToBytes32([]byte("operator-magnitudes"))
	slotAllocations   = tidal.BytesToBytes32([]byte("allocations"))
	slotDeallocQueues = tidal.BytesToBytes32([]byte("dealloc-queues"))
)

type storage struct {
	sctx        *store.Context
	magnitudes  *store.Mapping[tidal.Bytes32, OperatorMagnitude]
	allocations *store.Mapping[tidal.Bytes32, Allocation]
}

func newStorage(sctx *store.Context) *storage {
	return &storage{
		sctx:        sctx,
		magnitudes:  store.NewMapping[tidal.Bytes32, OperatorMagnitude](sctx, slotMagnitudes),
		allocations: store.NewMapping[tidal.Bytes32, Allocation](sctx, slotAllocations),
	}
}

func pairKey(operator tidal.Address, strategy tidal.Bytes32) tidal.Bytes32 {
	return tidal.Blake2b(operator.Bytes(), strategy.Bytes())
}

func allocKey(operator tidal.Address, set, strategy tidal.Bytes32) tidal.Bytes32 {
	return tidal.Blake2b(operator.Bytes(), set.Bytes(), strategy.Bytes())
}

// getMagnitude returns the capacity record; an operator never seen
// before holds the full WAD max with nothing encumbered.
func (s *storage) getMagnitude(operator tidal.Address, strategy tidal.Bytes32) (*OperatorMagnitude, error) {
	key := pairKey(operator, strategy)
	written, err := s.magnitudes.Has(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check magnitude")
	}
	if !written {
		return &OperatorMagnitude{Max: tidal.WAD}, nil
	}
	info, err := s.magnitudes.Get(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get magnitude")
	}
	return &info, nil
}

func (s *storage) setMagnitude(operator tidal.Address, strategy tidal.Bytes32, info *OperatorMagnitude) error {
	if err := s.magnitudes.Set(pairKey(operator, strategy), *info); err != nil {
		return errors.Wrap(err, "failed to set magnitude")
	}
	return nil
}

func (s *storage) getAllocation(operator tidal.Address, set, strategy tidal.Bytes32) (*Allocation, error) {
	alloc, err := s.allocations.Get(allocKey(operator, set, strategy))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get allocation")
	}
	return &alloc, nil
}

func (s *storage) setAllocation(operator tidal.Address, set, strategy tidal.Bytes32, alloc *Allocation) error {
	if err := s.allocations.Set(allocKey(operator, set, strategy), *alloc); err != nil {
		return errors.Wrap(err, "failed to set allocation")
	}
	return nil
}

// deallocQueue returns the FIFO of pending deallocations for the pair.
func (s *storage) deallocQueue(operator tidal.Address, strategy tidal.Bytes32) *store.Queue[deallocRef] {
	pos := tidal.Blake2b(slotDeallocQueues.Bytes(), operator.Bytes(), strategy.Bytes())
	return store.NewQueue[deallocRef](s.sctx, pos)
}
