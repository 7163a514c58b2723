// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package registry tracks the sub-accounts (validators) owned by each
// pod: identity, last recorded balance, last reconciliation time and
// lifecycle status. Pure data and transition rules, no share math.
package registry

import (
	"github.com/tidalprotocol/tidal/reverts"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

// Service owns sub-account records and per-pod active counts.
type Service struct {
	repo *storage
}

// New creates a registry service.
func New(sctx *store.Context) *Service {
	return &Service{repo: newStorage(sctx)}
}

// Get returns the sub-account record, a zero record if unknown.
func (s *Service) Get(owner tidal.Address, id tidal.Bytes32) (*SubAccount, error) {
	return s.repo.getSubAccount(owner, id)
}

// ActiveCount returns the number of active sub-accounts of the pod.
func (s *Service) ActiveCount(owner tidal.Address) (uint64, error) {
	return s.repo.getActiveCount(owner)
}

// Register activates a new sub-account. It fails if the record is not
// in its initial state. markTimestamp is the timestamp of the pod's
// open checkpoint, or zero when none is open; a sub-account registered
// mid-checkpoint is excluded from the open round via the replay guard.
func (s *Service) Register(
	owner tidal.Address,
	id tidal.Bytes32,
	externalIndex uint64,
	initialBalance uint64,
	markTimestamp uint64,
) error {
	sub, err := s.repo.getSubAccount(owner, id)
	if err != nil {
		return err
	}
	if sub.Status != StatusInactive || !sub.IsEmpty() {
		return reverts.New("sub-account already registered")
	}

	sub.ExternalIndex = externalIndex
	sub.LastBalance = initialBalance
	sub.LastReconciled = markTimestamp
	sub.Status = StatusActive
	if err := s.repo.setSubAccount(owner, id, sub); err != nil {
		return err
	}

	count, err := s.repo.getActiveCount(owner)
	if err != nil {
		return err
	}
	return s.repo.setActiveCount(owner, count+1)
}

// BalanceRecord is the outcome of recording a reconciled balance.
type BalanceRecord struct {
	Applied     bool
	PrevBalance uint64 // balance before the update, in grains
	Delta       int64  // newBalance - prevBalance
	Exited      bool   // the sub-account reported zero and is now terminal
}

// RecordBalance applies a proven balance to a sub-account. Stale or
// duplicate submissions are skipped, not rejected: the result reports
// Applied=false and the record is untouched.
func (s *Service) RecordBalance(
	owner tidal.Address,
	id tidal.Bytes32,
	newBalance uint64,
	atTimestamp uint64,
) (*BalanceRecord, error) {
	sub, err := s.repo.getSubAccount(owner, id)
	if err != nil {
		return nil, err
	}
	// replay/duplicate guard, also filters non-active records
	if sub.Status != StatusActive || sub.LastReconciled >= atTimestamp {
		return &BalanceRecord{Applied: false}, nil
	}

	record := &BalanceRecord{
		Applied:     true,
		PrevBalance: sub.LastBalance,
		Delta:       int64(newBalance) - int64(sub.LastBalance),
	}

	sub.LastBalance = newBalance
	sub.LastReconciled = atTimestamp
	if newBalance == 0 {
		sub.Status = StatusExited
		record.Exited = true
	}
	if err := s.repo.setSubAccount(owner, id, sub); err != nil {
		return nil, err
	}

	if record.Exited {
		count, err := s.repo.getActiveCount(owner)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, reverts.New("active count underflow")
		}
		if err := s.repo.setActiveCount(owner, count-1); err != nil {
			return nil, err
		}
	}
	return record, nil
}
