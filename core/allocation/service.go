// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package allocation tracks operator magnitude capacity per asset
// class and the delayed allocation/deallocation lifecycle. Increases
// reserve capacity at once but become slashable after a delay;
// slashable decreases stay exposed until their delay matures.
package allocation

import (
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/tidalprotocol/tidal/reverts"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
	"github.com/tidalprotocol/tidal/wad"
)

// Service owns operator magnitudes, allocations and deallocation queues.
type Service struct {
	repo *storage
}

// New creates an allocation service.
func New(sctx *store.Context) *Service {
	return &Service{repo: newStorage(sctx)}
}

// MagnitudeInfo returns the operator's capacity record for an asset class.
func (s *Service) MagnitudeInfo(operator tidal.Address, strategy tidal.Bytes32) (*OperatorMagnitude, error) {
	return s.repo.getMagnitude(operator, strategy)
}

// MaxMagnitude returns the operator's max magnitude for an asset class.
func (s *Service) MaxMagnitude(operator tidal.Address, strategy tidal.Bytes32) (uint64, error) {
	info, err := s.repo.getMagnitude(operator, strategy)
	if err != nil {
		return 0, err
	}
	return info.Max, nil
}

// GetAllocation returns the allocation with any matured increase made
// effective for reading. The stored record is not touched.
func (s *Service) GetAllocation(operator tidal.Address, set, strategy tidal.Bytes32, now uint32) (*Allocation, error) {
	alloc, err := s.repo.getAllocation(operator, set, strategy)
	if err != nil {
		return nil, err
	}
	alloc.absorbMaturedIncrease(now)
	return alloc, nil
}

// Modify sets the allocation's magnitude for (operator, set, strategy).
// An increase reserves capacity immediately and matures after
// allocDelay blocks. A decrease of a slashable allocation is queued for
// deallocDelay+1 blocks and remains exposed meanwhile; a non-slashable
// decrease applies at once.
func (s *Service) Modify(
	operator tidal.Address,
	set, strategy tidal.Bytes32,
	newMagnitude uint64,
	now uint32,
	slashable bool,
	allocDelay, deallocDelay uint32,
) error {
	// release matured deallocations first so capacity is current
	if _, err := s.ClearMatured(operator, strategy, now, 0); err != nil {
		return err
	}

	alloc, err := s.repo.getAllocation(operator, set, strategy)
	if err != nil {
		return err
	}
	alloc.absorbMaturedIncrease(now)
	if alloc.Pending != nil {
		return reverts.New("allocation has a pending change")
	}
	if newMagnitude == alloc.Magnitude {
		return reverts.New("same magnitude")
	}

	info, err := s.repo.getMagnitude(operator, strategy)
	if err != nil {
		return err
	}

	if newMagnitude > alloc.Magnitude {
		diff := newMagnitude - alloc.Magnitude
		encumbered, overflow := math.SafeAdd(info.Encumbered, diff)
		if overflow || encumbered > info.Max {
			return reverts.New("insufficient allocatable magnitude")
		}
		info.Encumbered = encumbered
		if allocDelay == 0 {
			alloc.Magnitude = newMagnitude
		} else {
			alloc.Pending = &PendingDiff{
				Decrease:    false,
				Amount:      diff,
				EffectBlock: now + allocDelay,
			}
		}
	} else {
		diff := alloc.Magnitude - newMagnitude
		if slashable && alloc.Magnitude > 0 {
			effect := now + deallocDelay + 1
			alloc.Pending = &PendingDiff{
				Decrease:    true,
				Amount:      diff,
				EffectBlock: effect,
			}
			queue := s.repo.deallocQueue(operator, strategy)
			if _, err := queue.Push(deallocRef{Set: set, EffectBlock: effect}); err != nil {
				return err
			}
		} else {
			alloc.Magnitude = newMagnitude
			encumbered, underflow := math.SafeSub(info.Encumbered, diff)
			if underflow {
				return reverts.New("encumbered magnitude underflow")
			}
			info.Encumbered = encumbered
		}
	}

	if err := s.repo.setMagnitude(operator, strategy, info); err != nil {
		return err
	}
	return s.repo.setAllocation(operator, set, strategy, alloc)
}

// ClearMatured pops matured deallocations off the front of the queue,
// releasing their magnitude and encumbrance. It stops at the first
// non-matured entry; FIFO order guarantees monotonic maturity. A
// maxToClear of zero means unbounded. Returns the number cleared.
func (s *Service) ClearMatured(operator tidal.Address, strategy tidal.Bytes32, now uint32, maxToClear int) (int, error) {
	queue := s.repo.deallocQueue(operator, strategy)
	cleared := 0
	for {
		if maxToClear > 0 && cleared >= maxToClear {
			return cleared, nil
		}
		length, err := queue.Len()
		if err != nil {
			return cleared, err
		}
		if length == 0 {
			return cleared, nil
		}
		head, err := queue.Head()
		if err != nil {
			return cleared, err
		}
		ref, err := queue.Get(head)
		if err != nil {
			return cleared, err
		}
		if ref.EffectBlock > now {
			return cleared, nil
		}
		if _, err := queue.PopFront(); err != nil {
			return cleared, err
		}
		if err := s.applyMaturedDealloc(operator, tidal.Bytes32(ref.Set), strategy, now); err != nil {
			return cleared, err
		}
		cleared++
	}
}

func (s *Service) applyMaturedDealloc(operator tidal.Address, set, strategy tidal.Bytes32, now uint32) error {
	alloc, err := s.repo.getAllocation(operator, set, strategy)
	if err != nil {
		return err
	}
	if alloc.Pending == nil || !alloc.Pending.Decrease || alloc.Pending.EffectBlock > now {
		return nil
	}
	amount := alloc.Pending.Amount

	magnitude, underflow := math.SafeSub(alloc.Magnitude, amount)
	if underflow {
		return reverts.New("allocation magnitude underflow")
	}
	alloc.Magnitude = magnitude
	alloc.Pending = nil

	info, err := s.repo.getMagnitude(operator, strategy)
	if err != nil {
		return err
	}
	encumbered, underflow := math.SafeSub(info.Encumbered, amount)
	if underflow {
		return reverts.New("encumbered magnitude underflow")
	}
	info.Encumbered = encumbered

	if err := s.repo.setMagnitude(operator, strategy, info); err != nil {
		return err
	}
	return s.repo.setAllocation(operator, set, strategy, alloc)
}

// SlashOutcome reports a magnitude reduction.
type SlashOutcome struct {
	Slashed uint64
	PrevMax uint64
	NewMax  uint64
}

// Slash reduces the allocation by ceil(magnitude*fraction) and charges
// the reduction against max and encumbered magnitude. A queued
// deallocation shrinks proportionally so less magnitude is freed when
// it matures. Returns nil when there is nothing to slash. Callers must
// clear matured deallocations first.
func (s *Service) Slash(
	operator tidal.Address,
	set, strategy tidal.Bytes32,
	fraction uint64,
	now uint32,
) (*SlashOutcome, error) {
	if fraction == 0 || fraction > tidal.WAD {
		return nil, reverts.New("slash fraction out of range")
	}

	alloc, err := s.repo.getAllocation(operator, set, strategy)
	if err != nil {
		return nil, err
	}
	alloc.absorbMaturedIncrease(now)
	if alloc.Magnitude == 0 {
		return nil, nil
	}

	info, err := s.repo.getMagnitude(operator, strategy)
	if err != nil {
		return nil, err
	}
	prevMax := info.Max

	// ceiling so the penalty is never under-charged by truncation
	slashed := wad.MulWadCeilU64(alloc.Magnitude, fraction)
	alloc.Magnitude -= slashed

	maxMagnitude, underflow := math.SafeSub(info.Max, slashed)
	if underflow {
		return nil, reverts.New("max magnitude underflow")
	}
	encumbered, underflow := math.SafeSub(info.Encumbered, slashed)
	if underflow {
		return nil, reverts.New("encumbered magnitude underflow")
	}
	info.Max = maxMagnitude
	info.Encumbered = encumbered

	// an exposed queued deallocation is slashed toward zero as well
	if alloc.Pending != nil && alloc.Pending.Decrease && alloc.Pending.EffectBlock > now {
		slashedPending := wad.MulWadCeilU64(alloc.Pending.Amount, fraction)
		if slashedPending > alloc.Pending.Amount {
			slashedPending = alloc.Pending.Amount
		}
		alloc.Pending.Amount -= slashedPending
	}

	if err := s.repo.setMagnitude(operator, strategy, info); err != nil {
		return nil, err
	}
	if err := s.repo.setAllocation(operator, set, strategy, alloc); err != nil {
		return nil, err
	}
	return &SlashOutcome{Slashed: slashed, PrevMax: prevMax, NewMax: info.Max}, nil
}
