// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package checkpoint drives the per-pod reconciliation lifecycle:
// start, batch-accumulate proven balances, finalize. Finalizing is the
// sole path by which pod balance changes become staker-visible shares.
package checkpoint

import (
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/tidalprotocol/tidal/core/registry"
	"github.com/tidalprotocol/tidal/reverts"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

// Service owns pod records and the checkpoint state machine.
type Service struct {
	repo     *storage
	registry *registry.Service
}

// New creates a checkpoint service over the given registry.
func New(sctx *store.Context, registry *registry.Service) *Service {
	return &Service{
		repo:     newStorage(sctx),
		registry: registry,
	}
}

// Outcome is emitted exactly once per finalized checkpoint.
type Outcome struct {
	Timestamp    uint64
	PriorBalance uint64 // credited balance before this round, in grains
	Delta        int64  // net balance movement of this round, in grains
	ExitedGrains uint64 // balance released by exits, for bookkeeping
}

// StartResult reports a started checkpoint. Finalized is non-nil when
// the round completed synchronously (no active sub-accounts).
type StartResult struct {
	Timestamp       uint64
	ProofsRemaining uint32
	ExecSnapshot    uint64
	Finalized       *Outcome
}

// GetPod returns the pod record, a zero record if unknown.
func (s *Service) GetPod(owner tidal.Address) (*Pod, error) {
	return s.repo.getPod(owner)
}

// Start opens a checkpoint for the pod at the given timestamp.
// execBalance is the pod's current execution-side balance; refRoot is
// the attestation anchor the round is pinned to. When the pod tracks no
// active sub-accounts the round finalizes within this call.
func (s *Service) Start(
	owner tidal.Address,
	now uint64,
	execBalance uint64,
	refRoot tidal.Bytes32,
	failIfZeroBalance bool,
) (*StartResult, error) {
	pod, err := s.repo.getPod(owner)
	if err != nil {
		return nil, err
	}
	if pod.Open() {
		return nil, reverts.New("checkpoint already open")
	}
	// two finalized rounds must never share a timestamp
	if pod.LastTimestamp >= now {
		return nil, reverts.New("checkpoint already finalized at this time")
	}

	snapshot, underflow := math.SafeSub(execBalance, pod.BalanceIncluded)
	if underflow {
		return nil, reverts.New("execution balance below included balance")
	}
	if snapshot == 0 && failIfZeroBalance {
		return nil, reverts.New("no balance to checkpoint")
	}

	count, err := s.registry.ActiveCount(owner)
	if err != nil {
		return nil, err
	}

	pod.Current = &Checkpoint{
		Timestamp:       now,
		ReferenceRoot:   refRoot,
		ProofsRemaining: uint32(count),
		ExecSnapshot:    snapshot,
	}

	result := &StartResult{
		Timestamp:       now,
		ProofsRemaining: pod.Current.ProofsRemaining,
		ExecSnapshot:    snapshot,
	}
	if pod.Current.ProofsRemaining == 0 {
		result.Finalized = finalize(pod)
	}
	if err := s.repo.setPod(owner, pod); err != nil {
		return nil, err
	}
	return result, nil
}

// AbsorbRegistration folds a newly registered sub-account's initial
// balance into the open checkpoint's prior-balance accumulator. It
// returns the open round's timestamp, or zero when the pod is idle, so
// the registry can exclude the sub-account from the open round.
func (s *Service) AbsorbRegistration(owner tidal.Address, initialBalance uint64) (uint64, error) {
	pod, err := s.repo.getPod(owner)
	if err != nil {
		return 0, err
	}
	if !pod.Open() {
		return 0, nil
	}
	pod.Current.PrevBalances += initialBalance
	if err := s.repo.setPod(owner, pod); err != nil {
		return 0, err
	}
	return pod.Current.Timestamp, nil
}

// ProvenBalance is one verified element of a proof batch.
type ProvenBalance struct {
	ID      tidal.Bytes32
	Balance uint64
}

// ApplyResult reports a processed proof batch.
type ApplyResult struct {
	Applied         int
	Skipped         int
	ProofsRemaining uint32
	Finalized       *Outcome
}

// ApplyBalances folds a batch of verified balances into the open
// checkpoint. Stale or duplicate elements are skipped, not rejected:
// one bad element must not abort an otherwise valid batch. The round
// finalizes within this call when the last proof lands.
func (s *Service) ApplyBalances(owner tidal.Address, proven []ProvenBalance) (*ApplyResult, error) {
	pod, err := s.repo.getPod(owner)
	if err != nil {
		return nil, err
	}
	if !pod.Open() {
		return nil, reverts.New("no open checkpoint")
	}
	cp := pod.Current

	result := &ApplyResult{}
	for _, p := range proven {
		record, err := s.registry.RecordBalance(owner, p.ID, p.Balance, cp.Timestamp)
		if err != nil {
			return nil, err
		}
		if !record.Applied {
			result.Skipped++
			continue
		}
		if cp.ProofsRemaining == 0 {
			return nil, reverts.New("proofs remaining underflow")
		}

		cp.PrevBalances += record.PrevBalance
		if record.Delta >= 0 {
			cp.DeltaGain += uint64(record.Delta)
		} else {
			cp.DeltaLoss += uint64(-record.Delta)
		}
		if record.Exited {
			cp.ExitedGrains += record.PrevBalance
		}
		cp.ProofsRemaining--
		result.Applied++
	}

	result.ProofsRemaining = cp.ProofsRemaining
	if cp.ProofsRemaining == 0 {
		result.Finalized = finalize(pod)
	}
	if err := s.repo.setPod(owner, pod); err != nil {
		return nil, err
	}
	return result, nil
}

// finalize absorbs the open checkpoint into the pod and produces the
// outcome to publish. Callers persist the pod and emit the outcome
// exactly once.
func finalize(pod *Pod) *Outcome {
	cp := pod.Current
	outcome := &Outcome{
		Timestamp:    cp.Timestamp,
		PriorBalance: pod.BalanceIncluded + cp.PrevBalances,
		Delta:        int64(cp.ExecSnapshot) + cp.NetDelta(),
		ExitedGrains: cp.ExitedGrains,
	}
	pod.BalanceIncluded += cp.ExecSnapshot
	pod.LastTimestamp = cp.Timestamp
	pod.Current = nil
	return outcome
}
