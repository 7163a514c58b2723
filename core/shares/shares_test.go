// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package shares_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalprotocol/tidal/core/shares"
	"github.com/tidalprotocol/tidal/lvldb"
	"github.com/tidalprotocol/tidal/state"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	staker   = tidal.BytesToAddress([]byte("staker"))
	operator = tidal.BytesToAddress([]byte("operator"))
	strat    = tidal.BytesToBytes32([]byte("erc20-strategy"))
)

func newService(t *testing.T) *shares.Service {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	return shares.New(store.NewContext(tidal.BytesToAddress([]byte("ns")), state.New(db)))
}

func wadBig() *big.Int {
	return new(big.Int).SetUint64(tidal.WAD)
}

func TestDefaults(t *testing.T) {
	svc := newService(t)

	dep, err := svc.GetDeposit(staker, strat)
	require.NoError(t, err)
	assert.Equal(t, 0, dep.Shares.Sign())
	assert.Equal(t, wadBig(), dep.ScalingFactor)

	total, err := svc.OperatorShares(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, 0, total.Sign())

	factor, err := svc.BeaconFactor(staker)
	require.NoError(t, err)
	assert.Equal(t, tidal.WAD, factor)
}

func TestAddSharesUndelegated(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(1000), tidal.WAD))

	dep, err := svc.GetDeposit(staker, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), dep.Shares.Int64())
	assert.Equal(t, wadBig(), dep.ScalingFactor)

	// no delegation, operator pool untouched
	total, err := svc.OperatorShares(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, 0, total.Sign())

	withdrawable, err := svc.WithdrawableShares(staker, strat, tidal.WAD)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), withdrawable.Int64())
}

func TestDelegationMovesSharesToOperator(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.Delegate(staker, operator, nil))
	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(1000), tidal.WAD))

	total, err := svc.OperatorShares(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total.Int64())

	// redelegation is rejected, repeating the same one is a no-op
	other := tidal.BytesToAddress([]byte("other"))
	assert.EqualError(t, svc.Delegate(staker, other, nil), "staker already delegated")
	require.NoError(t, svc.Delegate(staker, operator, nil))
}

func TestDelegationMovesPriorDeposits(t *testing.T) {
	svc := newService(t)

	// deposits made before delegating, across classes
	stratB := tidal.BytesToBytes32([]byte("erc20-strategy-b"))
	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(10_000), tidal.WAD))
	require.NoError(t, svc.AddShares(staker, stratB, big.NewInt(3_000), tidal.WAD))

	require.NoError(t, svc.Delegate(staker, operator, nil))

	total, err := svc.OperatorShares(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), total.Int64())

	total, err = svc.OperatorShares(operator, stratB)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000), total.Int64())
}

func TestDelegationAppliesOperatorMagnitude(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(1000), tidal.WAD))

	// the operator enters at a halved magnitude for this class
	require.NoError(t, svc.Delegate(staker, operator, func(tidal.Bytes32) (uint64, error) {
		return tidal.WAD / 2, nil
	}))

	total, err := svc.OperatorShares(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(500), total.Int64())
}

func TestSlashOperatorShares(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Delegate(staker, operator, nil))
	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(10000), tidal.WAD))

	// a 10% magnitude cut removes 10% of the pool
	removed, err := svc.SlashOperatorShares(operator, strat, tidal.WAD, tidal.WAD-tidal.WAD/10)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), removed.Int64())

	total, err := svc.OperatorShares(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), total.Int64())
}

func TestSlashOperatorSharesRoundsRetainedUp(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Delegate(staker, operator, nil))
	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(10), tidal.WAD))

	// 1/3 cut of 10 shares: retained = ceil(10*2/3) = 7, removed = 3
	removed, err := svc.SlashOperatorShares(operator, strat, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed.Int64())

	total, err := svc.OperatorShares(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total.Int64())
}

func TestSlashOperatorSharesZeroPrevMax(t *testing.T) {
	svc := newService(t)

	removed, err := svc.SlashOperatorShares(operator, strat, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed.Sign())
}

func TestScalingFactorForgivesPriorPenalty(t *testing.T) {
	svc := newService(t)

	// first deposit at a halved magnitude: DSF doubles so the staker
	// enters at par
	halfMax := tidal.WAD / 2
	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(1000), halfMax))

	dep, err := svc.GetDeposit(staker, strat)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(wadBig(), big.NewInt(2)), dep.ScalingFactor)

	withdrawable, err := svc.WithdrawableShares(staker, strat, halfMax)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), withdrawable.Int64())
}

func TestSecondDepositPreservesValueContinuity(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(1000), tidal.WAD))

	// zero out further, then deposit again at a halved magnitude
	halfMax := tidal.WAD / 2
	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(500), halfMax))

	// withdrawable before: 1000 * 0.5 = 500; after adding 500 it must be 1000
	withdrawable, err := svc.WithdrawableShares(staker, strat, halfMax)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), withdrawable.Int64())

	dep, err := svc.GetDeposit(staker, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), dep.Shares.Int64())
}

func TestAddSharesFullySlashedRejected(t *testing.T) {
	svc := newService(t)

	err := svc.AddShares(staker, strat, big.NewInt(1000), 0)
	assert.EqualError(t, err, "staker is fully slashed")
}

func TestNativeFactorComposition(t *testing.T) {
	svc := newService(t)

	// native class composes the beacon factor on top of the magnitude
	factor, err := svc.SlashingFactor(staker, tidal.NativeStrategy, tidal.WAD/2)
	require.NoError(t, err)
	assert.Equal(t, tidal.WAD/2, factor)

	// a 20% beacon loss on prior balance 100
	require.NoError(t, svc.ApplyReconciliation(staker, 100, -20, tidal.WAD))

	beacon, err := svc.BeaconFactor(staker)
	require.NoError(t, err)
	assert.Equal(t, tidal.WAD*4/5, beacon)

	factor, err = svc.SlashingFactor(staker, tidal.NativeStrategy, tidal.WAD/2)
	require.NoError(t, err)
	assert.Equal(t, tidal.WAD*2/5, factor)

	// non-native classes never see the beacon factor
	factor, err = svc.SlashingFactor(staker, strat, tidal.WAD/2)
	require.NoError(t, err)
	assert.Equal(t, tidal.WAD/2, factor)
}

func TestApplyReconciliationPositiveDelta(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.ApplyReconciliation(staker, 0, 500, tidal.WAD))

	dep, err := svc.GetDeposit(staker, tidal.NativeStrategy)
	require.NoError(t, err)
	assert.Equal(t, int64(500), dep.Shares.Int64())
}

func TestApplyReconciliationTotalLoss(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.ApplyReconciliation(staker, 100, -100, tidal.WAD))

	beacon, err := svc.BeaconFactor(staker)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), beacon)

	// direct deposits stay rejected
	err = svc.AddShares(staker, tidal.NativeStrategy, big.NewInt(500), tidal.WAD)
	assert.EqualError(t, err, "staker is fully slashed")

	// a later reconciliation gain is dropped, not wedged
	require.NoError(t, svc.ApplyReconciliation(staker, 0, 500, tidal.WAD))

	dep, err := svc.GetDeposit(staker, tidal.NativeStrategy)
	require.NoError(t, err)
	assert.Equal(t, 0, dep.Shares.Sign())
}

func TestRemoveDepositShares(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(1000), tidal.WAD))

	scaled, factor, err := svc.RemoveDepositShares(staker, strat, big.NewInt(400))
	require.NoError(t, err)
	assert.Equal(t, int64(400), scaled.Int64())
	assert.Equal(t, wadBig(), factor)

	dep, err := svc.GetDeposit(staker, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(600), dep.Shares.Int64())

	_, _, err = svc.RemoveDepositShares(staker, strat, big.NewInt(601))
	assert.EqualError(t, err, "insufficient deposit shares")
}

func TestCompoundedSlashes(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Delegate(staker, operator, nil))
	require.NoError(t, svc.AddShares(staker, strat, big.NewInt(1_000_000), tidal.WAD))

	// 10% then 20%: pool retains 0.9 * 0.8 = 0.72
	max1 := tidal.WAD - tidal.WAD/10
	_, err := svc.SlashOperatorShares(operator, strat, tidal.WAD, max1)
	require.NoError(t, err)

	max2 := max1 - max1/5
	_, err = svc.SlashOperatorShares(operator, strat, max1, max2)
	require.NoError(t, err)

	total, err := svc.OperatorShares(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, int64(720_000), total.Int64())
}
