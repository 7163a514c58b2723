// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package core_test

import (
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalprotocol/tidal/core"
	"github.com/tidalprotocol/tidal/core/checkpoint"
	"github.com/tidalprotocol/tidal/lvldb"
	"github.com/tidalprotocol/tidal/reverts"
	"github.com/tidalprotocol/tidal/state"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	owner    = tidal.BytesToAddress([]byte("pod-owner"))
	staker   = tidal.BytesToAddress([]byte("staker"))
	operator = tidal.BytesToAddress([]byte("operator"))
	setA     = tidal.BytesToBytes32([]byte("set-a"))
	stratA   = tidal.BytesToBytes32([]byte("strategy-a"))
	sub1     = tidal.BytesToBytes32([]byte("sub-1"))
	sub2     = tidal.BytesToBytes32([]byte("sub-2"))
)

type fakeVerifier struct {
	rootCalls int
	creds     map[tidal.Bytes32]*core.Credential
}

func (v *fakeVerifier) RootAt(ts uint64) (tidal.Bytes32, error) {
	v.rootCalls++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ts)
	return tidal.BytesToBytes32(buf[:]), nil
}

func (v *fakeVerifier) VerifyContainer(_ tidal.Bytes32, proof *core.ContainerProof) error {
	if string(proof.Proof) == "bad" {
		return errors.New("container proof mismatch")
	}
	return nil
}

func (v *fakeVerifier) VerifyBalance(_ tidal.Bytes32, proof *core.BalanceProof) error {
	if string(proof.Proof) == "bad" {
		return errors.New("balance proof mismatch")
	}
	return nil
}

func (v *fakeVerifier) VerifyCredential(_ tidal.Bytes32, proof *core.CredentialProof) (*core.Credential, error) {
	cred, ok := v.creds[proof.ID]
	if !ok {
		return nil, errors.New("unknown credential")
	}
	return cred, nil
}

type fakeBalances struct {
	grains map[tidal.Address]uint64
}

func (b *fakeBalances) PodBalance(o tidal.Address) (uint64, error) {
	return b.grains[o], nil
}

type fakeGate struct {
	blocked string
}

func (g *fakeGate) Check(op string) error {
	if op == g.blocked {
		return errors.New("paused")
	}
	return nil
}

type fakeMembership struct {
	members map[tidal.Address]bool
}

func (m *fakeMembership) IsMember(op tidal.Address, _ tidal.Bytes32) (bool, error) {
	return m.members[op], nil
}

type sinkRecord struct {
	owner   tidal.Address
	outcome *checkpoint.Outcome
}

type fakeSink struct {
	fail     bool
	received []sinkRecord
}

func (s *fakeSink) OnReconciled(o tidal.Address, outcome *checkpoint.Outcome) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.received = append(s.received, sinkRecord{owner: o, outcome: outcome})
	return nil
}

type env struct {
	core       *core.Core
	verifier   *fakeVerifier
	balances   *fakeBalances
	membership *fakeMembership
	sink       *fakeSink
}

func newEnv(t *testing.T, gate core.Gate) *env {
	db, err := lvldb.NewMem()
	require.NoError(t, err)

	e := &env{
		verifier:   &fakeVerifier{creds: make(map[tidal.Bytes32]*core.Credential)},
		balances:   &fakeBalances{grains: make(map[tidal.Address]uint64)},
		membership: &fakeMembership{members: map[tidal.Address]bool{operator: true}},
		sink:       &fakeSink{},
	}
	e.core, err = core.New(state.New(db), core.Options{
		Verifier:   e.verifier,
		Balances:   e.balances,
		Gate:       gate,
		Membership: e.membership,
		Sink:       e.sink,
	})
	require.NoError(t, err)
	return e
}

func setDelays(t *testing.T, alloc, dealloc, withdrawal uint32) {
	prevAlloc, prevDealloc, prevWdr := tidal.AllocationDelay(), tidal.DeallocationDelay(), tidal.WithdrawalDelay()
	tidal.SetAllocationDelay(alloc)
	tidal.SetDeallocationDelay(dealloc)
	tidal.SetWithdrawalDelay(withdrawal)
	t.Cleanup(func() {
		tidal.SetAllocationDelay(prevAlloc)
		tidal.SetDeallocationDelay(prevDealloc)
		tidal.SetWithdrawalDelay(prevWdr)
	})
}

func TestCheckpointLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	e.verifier.creds[sub1] = &core.Credential{Index: 1, BalanceGrains: 100}
	e.verifier.creds[sub2] = &core.Credential{Index: 2, BalanceGrains: 200}

	require.NoError(t, e.core.RegisterSubAccounts(owner, []core.CredentialProof{
		{ID: sub1}, {ID: sub2},
	}, 1000))

	count, err := e.core.ActiveSubAccounts(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	e.balances.grains[owner] = 50
	started, err := e.core.StartCheckpoint(owner, 2000, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), started.ProofsRemaining)
	assert.Equal(t, uint64(50), started.ExecSnapshot)
	assert.Nil(t, started.Finalized)

	// sub1 gained 50, sub2 lost 50; the pod itself holds 50
	applied, err := e.core.SubmitProofs(owner, &core.ContainerProof{}, []core.BalanceProof{
		{ID: sub1, BalanceGrains: 150},
		{ID: sub2, BalanceGrains: 150},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied.Applied)
	assert.Equal(t, 0, applied.Skipped)
	require.NotNil(t, applied.Finalized)
	assert.Equal(t, uint64(300), applied.Finalized.PriorBalance)
	assert.Equal(t, int64(50), applied.Finalized.Delta)

	require.Len(t, e.sink.received, 1)
	assert.Equal(t, owner, e.sink.received[0].owner)
	assert.Equal(t, int64(50), e.sink.received[0].outcome.Delta)

	// the finalized delta is minted as native deposit shares
	position, err := e.core.GetStakerPosition(owner, tidal.NativeStrategy)
	require.NoError(t, err)
	assert.Equal(t, int64(50), position.DepositShares.Int64())
	assert.Equal(t, int64(50), position.Withdrawable.Int64())

	pod, err := e.core.GetPod(owner)
	require.NoError(t, err)
	assert.False(t, pod.Open())
	assert.Equal(t, uint64(2000), pod.LastTimestamp)
}

func TestSinkErrorRevertsFinalize(t *testing.T) {
	e := newEnv(t, nil)
	e.balances.grains[owner] = 50
	e.sink.fail = true

	_, err := e.core.StartCheckpoint(owner, 2000, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile sink rejected outcome")

	// nothing of the failed round survives
	pod, err := e.core.GetPod(owner)
	require.NoError(t, err)
	assert.False(t, pod.Open())
	assert.Equal(t, uint64(0), pod.LastTimestamp)
	position, err := e.core.GetStakerPosition(owner, tidal.NativeStrategy)
	require.NoError(t, err)
	assert.Equal(t, 0, position.DepositShares.Sign())

	// the round can be retried once the sink recovers
	e.sink.fail = false
	started, err := e.core.StartCheckpoint(owner, 2000, false)
	require.NoError(t, err)
	require.NotNil(t, started.Finalized)
	assert.Equal(t, int64(50), started.Finalized.Delta)
	require.Len(t, e.sink.received, 1)
}

func TestNegativeDeltaShrinksBeaconFactor(t *testing.T) {
	e := newEnv(t, nil)
	e.verifier.creds[sub1] = &core.Credential{Index: 1, BalanceGrains: 1000}
	require.NoError(t, e.core.RegisterSubAccounts(owner, []core.CredentialProof{{ID: sub1}}, 1000))

	_, err := e.core.StartCheckpoint(owner, 2000, false)
	require.NoError(t, err)
	applied, err := e.core.SubmitProofs(owner, &core.ContainerProof{}, []core.BalanceProof{
		{ID: sub1, BalanceGrains: 800},
	})
	require.NoError(t, err)
	require.NotNil(t, applied.Finalized)
	assert.Equal(t, int64(-200), applied.Finalized.Delta)

	factor, err := e.core.BeaconFactor(owner)
	require.NoError(t, err)
	assert.Equal(t, tidal.WAD/1000*800, factor)
}

func TestGainAfterTotalLossStillFinalizes(t *testing.T) {
	e := newEnv(t, nil)
	e.verifier.creds[sub1] = &core.Credential{Index: 1, BalanceGrains: 1000}
	require.NoError(t, e.core.RegisterSubAccounts(owner, []core.CredentialProof{{ID: sub1}}, 1000))

	// round one wipes the whole balance
	_, err := e.core.StartCheckpoint(owner, 2000, false)
	require.NoError(t, err)
	applied, err := e.core.SubmitProofs(owner, &core.ContainerProof{}, []core.BalanceProof{
		{ID: sub1, BalanceGrains: 0},
	})
	require.NoError(t, err)
	require.NotNil(t, applied.Finalized)

	factor, err := e.core.BeaconFactor(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), factor)

	// a later gain still finalizes; the minted value is dropped
	e.balances.grains[owner] = 500
	started, err := e.core.StartCheckpoint(owner, 3000, false)
	require.NoError(t, err)
	require.NotNil(t, started.Finalized)
	assert.Equal(t, int64(500), started.Finalized.Delta)
	require.Len(t, e.sink.received, 2)

	position, err := e.core.GetStakerPosition(owner, tidal.NativeStrategy)
	require.NoError(t, err)
	assert.Equal(t, 0, position.DepositShares.Sign())
}

func TestRegistrationGuards(t *testing.T) {
	e := newEnv(t, nil)
	e.verifier.creds[sub1] = &core.Credential{Index: 1, BalanceGrains: 100, EligibleAt: 5000}
	err := e.core.RegisterSubAccounts(owner, []core.CredentialProof{{ID: sub1}}, 1000)
	assert.EqualError(t, err, "sub-account not yet eligible")
	assert.True(t, reverts.IsRuleErr(err))

	e.verifier.creds[sub1] = &core.Credential{Index: 1, BalanceGrains: 100, ExitScheduledAt: 900}
	err = e.core.RegisterSubAccounts(owner, []core.CredentialProof{{ID: sub1}}, 1000)
	assert.EqualError(t, err, "sub-account exit in progress")
	assert.True(t, reverts.IsRuleErr(err))

	err = e.core.RegisterSubAccounts(owner, nil, 1000)
	assert.EqualError(t, err, "no credentials to register")
}

func TestRegistrationBatchIsAtomic(t *testing.T) {
	e := newEnv(t, nil)
	e.verifier.creds[sub1] = &core.Credential{Index: 1, BalanceGrains: 100}
	// sub2 has no credential, the whole batch must fail
	err := e.core.RegisterSubAccounts(owner, []core.CredentialProof{{ID: sub1}, {ID: sub2}}, 1000)
	require.Error(t, err)

	count, err := e.core.ActiveSubAccounts(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSubmitProofsRejectsBadProofs(t *testing.T) {
	e := newEnv(t, nil)
	e.verifier.creds[sub1] = &core.Credential{Index: 1, BalanceGrains: 100}
	require.NoError(t, e.core.RegisterSubAccounts(owner, []core.CredentialProof{{ID: sub1}}, 1000))
	e.balances.grains[owner] = 10
	_, err := e.core.StartCheckpoint(owner, 2000, false)
	require.NoError(t, err)

	_, err = e.core.SubmitProofs(owner, &core.ContainerProof{Proof: []byte("bad")}, []core.BalanceProof{
		{ID: sub1, BalanceGrains: 100},
	})
	assert.ErrorContains(t, err, "container proof verification failed")

	_, err = e.core.SubmitProofs(owner, &core.ContainerProof{}, []core.BalanceProof{
		{ID: sub1, BalanceGrains: 100, Proof: []byte("bad")},
	})
	assert.ErrorContains(t, err, "balance proof verification failed")

	_, err = e.core.SubmitProofs(owner, &core.ContainerProof{}, nil)
	assert.EqualError(t, err, "empty proof batch")

	// the round is still open and completable
	applied, err := e.core.SubmitProofs(owner, &core.ContainerProof{}, []core.BalanceProof{
		{ID: sub1, BalanceGrains: 100},
	})
	require.NoError(t, err)
	require.NotNil(t, applied.Finalized)
}

func TestStartCheckpointGuards(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.core.StartCheckpoint(owner, 2000, true)
	assert.EqualError(t, err, "no balance to checkpoint")

	e.balances.grains[owner] = 10
	_, err = e.core.StartCheckpoint(owner, 2000, false)
	require.NoError(t, err)
	_, err = e.core.StartCheckpoint(owner, 2000, false)
	assert.EqualError(t, err, "checkpoint already finalized at this time")
}

func TestReferenceRootIsCached(t *testing.T) {
	e := newEnv(t, nil)
	other := tidal.BytesToAddress([]byte("other-pod"))
	e.balances.grains[owner] = 10
	e.balances.grains[other] = 20

	_, err := e.core.StartCheckpoint(owner, 2000, false)
	require.NoError(t, err)
	_, err = e.core.StartCheckpoint(other, 2000, false)
	require.NoError(t, err)
	assert.Equal(t, 1, e.verifier.rootCalls)
}

func TestGateRejectsOperation(t *testing.T) {
	e := newEnv(t, &fakeGate{blocked: core.OpDeposit})

	err := e.core.Deposit(staker, stratA, big.NewInt(1000))
	assert.ErrorContains(t, err, "operation deposit rejected")

	// other operations pass the gate
	require.NoError(t, e.core.Delegate(staker, operator))
}

func TestDepositRejectsNativeStrategy(t *testing.T) {
	e := newEnv(t, nil)
	err := e.core.Deposit(staker, tidal.NativeStrategy, big.NewInt(1000))
	assert.EqualError(t, err, "native shares enter via checkpoints only")
}

func TestDelegateMovesExistingDeposits(t *testing.T) {
	e := newEnv(t, nil)

	// deposits made before delegating end up in the operator's pool
	require.NoError(t, e.core.Deposit(staker, stratA, big.NewInt(10_000)))
	require.NoError(t, e.core.Delegate(staker, operator))

	total, err := e.core.OperatorShares(operator, stratA)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), total.Int64())
}

func TestDelegateAllocateSlashWithdraw(t *testing.T) {
	setDelays(t, 0, 10, 20)
	e := newEnv(t, nil)

	require.NoError(t, e.core.Delegate(staker, operator))
	require.NoError(t, e.core.Deposit(staker, stratA, big.NewInt(10_000)))

	total, err := e.core.OperatorShares(operator, stratA)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), total.Int64())

	require.NoError(t, e.core.ModifyAllocation(operator, setA, stratA, tidal.WAD, 100))

	// only set members can be slashed
	outsider := tidal.BytesToAddress([]byte("outsider"))
	_, err = e.core.Slash(outsider, setA, []tidal.Bytes32{stratA}, []uint64{tidal.WAD / 10}, 110)
	assert.EqualError(t, err, "operator not in set")

	result, err := e.core.Slash(operator, setA, []tidal.Bytes32{stratA}, []uint64{tidal.WAD / 10}, 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.PenaltyID)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, int64(1000), result.Entries[0].SharesRemoved.Int64())

	burnable, err := e.core.BurnableShares(setA, result.PenaltyID, stratA)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), burnable.Int64())

	w, err := e.core.QueueWithdrawal(staker, stratA, big.NewInt(1000), 120)
	require.NoError(t, err)
	assert.Equal(t, uint32(140), w.CompletableAt)
	assert.Equal(t, tidal.WAD-tidal.WAD/10, w.FactorAtQueue)

	// queuing debits both the deposit and the delegated pool
	position, err := e.core.GetStakerPosition(staker, stratA)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), position.DepositShares.Int64())
	total, err = e.core.OperatorShares(operator, stratA)
	require.NoError(t, err)
	assert.Equal(t, int64(8100), total.Int64())

	_, err = e.core.CompleteWithdrawal(w.Root(), 130)
	assert.EqualError(t, err, "withdrawal delay has not elapsed")

	paid, err := e.core.CompleteWithdrawal(w.Root(), 140)
	require.NoError(t, err)
	assert.Equal(t, int64(900), paid.Int64())

	_, err = e.core.CompleteWithdrawal(w.Root(), 141)
	assert.EqualError(t, err, "withdrawal not found")
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	setDelays(t, 0, 10, 20)
	e := newEnv(t, nil)
	require.NoError(t, e.core.Delegate(staker, operator))
	require.NoError(t, e.core.Deposit(staker, stratA, big.NewInt(10_000)))
	require.NoError(t, e.core.ModifyAllocation(operator, setA, stratA, tidal.WAD, 100))

	// invalid fraction rejects the whole penalty, counter included
	_, err := e.core.Slash(operator, setA, []tidal.Bytes32{stratA}, []uint64{tidal.WAD + 1}, 110)
	assert.EqualError(t, err, "fraction out of range")

	result, err := e.core.Slash(operator, setA, []tidal.Bytes32{stratA}, []uint64{tidal.WAD / 10}, 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.PenaltyID)
}
