// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package core

import (
	"github.com/tidalprotocol/tidal/core/checkpoint"
	"github.com/tidalprotocol/tidal/tidal"
)

// ContainerProof proves a pod's balance container against a reference
// root. The proof bytes are opaque to the engine, only the Verifier
// interprets them.
type ContainerProof struct {
	ContainerRoot tidal.Bytes32
	Proof         []byte
}

// BalanceProof proves one sub-account's balance against a verified
// container root.
type BalanceProof struct {
	ID            tidal.Bytes32
	BalanceGrains uint64
	Proof         []byte
}

// CredentialProof proves a sub-account's registration credential
// against a reference root.
type CredentialProof struct {
	ID    tidal.Bytes32
	Proof []byte
}

// Credential is the verified registration record of a sub-account.
type Credential struct {
	Index           uint64
	BalanceGrains   uint64
	EligibleAt      uint64
	ExitScheduledAt uint64 // zero when no exit is scheduled
}

// Verifier anchors checkpoint rounds to external attestations and
// checks the proofs submitted against them.
type Verifier interface {
	// RootAt returns the reference root effective at the given timestamp.
	RootAt(timestamp uint64) (tidal.Bytes32, error)
	// VerifyContainer checks the container proof against refRoot.
	VerifyContainer(refRoot tidal.Bytes32, proof *ContainerProof) error
	// VerifyBalance checks one balance proof against a verified container root.
	VerifyBalance(containerRoot tidal.Bytes32, proof *BalanceProof) error
	// VerifyCredential checks a credential proof against refRoot and
	// returns the verified credential.
	VerifyCredential(refRoot tidal.Bytes32, proof *CredentialProof) (*Credential, error)
}

// BalanceReader reports a pod's current execution-side balance in grains.
type BalanceReader interface {
	PodBalance(owner tidal.Address) (uint64, error)
}

// Gate admits or rejects operations before any state is touched. A nil
// gate admits everything.
type Gate interface {
	Check(op string) error
}

// Membership reports operator-set membership. Allocations toward sets
// the operator is a member of are slashable, and only members can be
// slashed.
type Membership interface {
	IsMember(operator tidal.Address, set tidal.Bytes32) (bool, error)
}

// ReconcileSink receives finalized checkpoint outcomes, exactly once
// per finalized round. A sink error aborts and reverts the operation
// that finalized the round.
type ReconcileSink interface {
	OnReconciled(owner tidal.Address, outcome *checkpoint.Outcome) error
}

// Operation names passed to the gate.
const (
	OpRegister           = "register"
	OpStartCheckpoint    = "start-checkpoint"
	OpSubmitProofs       = "submit-proofs"
	OpDeposit            = "deposit"
	OpDelegate           = "delegate"
	OpModifyAllocation   = "modify-allocation"
	OpClearDeallocations = "clear-deallocations"
	OpSlash              = "slash"
	OpQueueWithdrawal    = "queue-withdrawal"
	OpCompleteWithdrawal = "complete-withdrawal"
)
