// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package slashing coordinates a penalty event across the magnitude
// allocator, the share ledger and the withdrawal queue. One call slashes
// several asset classes of one operator under one penalty domain.
package slashing

import (
	"math/big"

	"github.com/tidalprotocol/tidal/core/allocation"
	"github.com/tidalprotocol/tidal/core/shares"
	"github.com/tidalprotocol/tidal/core/withdrawals"
	"github.com/tidalprotocol/tidal/reverts"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

// Service is the slashing engine.
type Service struct {
	storage     *storage
	alloc       *allocation.Service
	shares      *shares.Service
	withdrawals *withdrawals.Service
}

// New creates the slashing engine over its collaborating services.
func New(sctx *store.Context, alloc *allocation.Service, shares *shares.Service, withdrawals *withdrawals.Service) *Service {
	return &Service{
		storage:     newStorage(sctx),
		alloc:       alloc,
		shares:      shares,
		withdrawals: withdrawals,
	}
}

// StrategyResult reports the penalty applied to one asset class.
type StrategyResult struct {
	Strategy            tidal.Bytes32
	SlashedMagnitude    uint64
	PrevMaxMagnitude    uint64
	NewMaxMagnitude     uint64
	SharesRemoved       *big.Int
	WindowScaledSlashed *big.Int
}

// Result reports a whole penalty event.
type Result struct {
	PenaltyID uint64
	Entries   []StrategyResult
}

// Slash applies WAD-scaled penalty fractions to the operator's
// allocations under one penalty domain. Strategies must be unique and
// strictly ascending. Matured deallocations are released before the
// penalty so already-freed magnitude is out of reach; queued
// withdrawals still inside their delay window are charged too.
func (s *Service) Slash(
	operator tidal.Address,
	set tidal.Bytes32,
	strategies []tidal.Bytes32,
	fractions []uint64,
	now uint32,
) (*Result, error) {
	if len(strategies) == 0 {
		return nil, reverts.New("no strategies to slash")
	}
	if len(strategies) != len(fractions) {
		return nil, reverts.New("strategies and fractions length mismatch")
	}
	for i, fraction := range fractions {
		if fraction == 0 || fraction > tidal.WAD {
			return nil, reverts.New("fraction out of range")
		}
		if i > 0 && strategies[i-1].Compare(strategies[i]) >= 0 {
			return nil, reverts.New("strategies must be strictly ascending")
		}
	}

	penaltyID, err := s.storage.penaltyCounter(set).Increment()
	if err != nil {
		return nil, err
	}

	result := &Result{PenaltyID: penaltyID}
	for i, strategy := range strategies {
		entry := StrategyResult{
			Strategy:            strategy,
			SharesRemoved:       new(big.Int),
			WindowScaledSlashed: new(big.Int),
		}
		if _, err := s.alloc.ClearMatured(operator, strategy, now, 0); err != nil {
			return nil, err
		}
		outcome, err := s.alloc.Slash(operator, set, strategy, fractions[i], now)
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			entry.SlashedMagnitude = outcome.Slashed
			entry.PrevMaxMagnitude = outcome.PrevMax
			entry.NewMaxMagnitude = outcome.NewMax

			removed, err := s.shares.SlashOperatorShares(operator, strategy, outcome.PrevMax, outcome.NewMax)
			if err != nil {
				return nil, err
			}
			entry.SharesRemoved = removed

			window, err := s.withdrawals.ApplyWindowSlash(operator, strategy, outcome.PrevMax, outcome.NewMax, now)
			if err != nil {
				return nil, err
			}
			entry.WindowScaledSlashed = window

			if removed.Sign() > 0 || window.Sign() > 0 {
				burnable := new(big.Int).Add(removed, window)
				if err := s.storage.setBurnable(set, penaltyID, strategy, burnable); err != nil {
					return nil, err
				}
			}
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

// BurnableShares returns the shares marked burnable for one strategy
// of a past penalty event.
func (s *Service) BurnableShares(set tidal.Bytes32, penaltyID uint64, strategy tidal.Bytes32) (*big.Int, error) {
	return s.storage.getBurnable(set, penaltyID, strategy)
}
