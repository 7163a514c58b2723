// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package withdrawals_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalprotocol/tidal/core/withdrawals"
	"github.com/tidalprotocol/tidal/lvldb"
	"github.com/tidalprotocol/tidal/state"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	staker   = tidal.BytesToAddress([]byte("staker"))
	operator = tidal.BytesToAddress([]byte("operator"))
	strat    = tidal.BytesToBytes32([]byte("strategy"))
)

const delay = uint32(100)

func newService(t *testing.T) *withdrawals.Service {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	return withdrawals.New(store.NewContext(tidal.BytesToAddress([]byte("ns")), state.New(db)))
}

func wadBig() *big.Int {
	return new(big.Int).SetUint64(tidal.WAD)
}

func TestQueueAndGet(t *testing.T) {
	svc := newService(t)

	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)
	assert.Equal(t, uint32(150), w.CompletableAt)
	assert.Equal(t, uint64(0), w.Nonce)

	got, found, err := svc.Get(w.Root())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1000), got.ScaledShares.Int64())

	// a second withdrawal of the same shape gets a fresh nonce and root
	w2, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), w2.Nonce)
	assert.NotEqual(t, w.Root(), w2.Root())

	count, err := svc.PendingCount(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestQueueZeroRejected(t *testing.T) {
	svc := newService(t)

	_, err := svc.Queue(staker, operator, strat, big.NewInt(0), tidal.WAD, 50, delay)
	assert.EqualError(t, err, "nothing to withdraw")
}

func TestCompleteBeforeMaturity(t *testing.T) {
	svc := newService(t)

	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)

	_, err = svc.Complete(w.Root(), 149, wadBig())
	assert.EqualError(t, err, "withdrawal delay has not elapsed")
}

func TestCompletePaysFactorAtQueue(t *testing.T) {
	svc := newService(t)

	halfFactor := tidal.WAD / 2
	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), halfFactor, 50, delay)
	require.NoError(t, err)

	paid, err := svc.Complete(w.Root(), 150, wadBig())
	require.NoError(t, err)
	assert.Equal(t, int64(500), paid.Int64())

	// destroyed on completion
	_, found, err := svc.Get(w.Root())
	require.NoError(t, err)
	assert.False(t, found)

	_, err = svc.Complete(w.Root(), 151, wadBig())
	assert.EqualError(t, err, "withdrawal not found")
}

func TestWindowSlash(t *testing.T) {
	svc := newService(t)

	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)

	// a 10% magnitude cut inside the window
	total, err := svc.ApplyWindowSlash(operator, strat, tidal.WAD, tidal.WAD-tidal.WAD/10, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total.Int64())

	got, _, err := svc.Get(w.Root())
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.SlashedScaled.Int64())

	// completion pays the queue-time amount minus the window slash
	paid, err := svc.Complete(w.Root(), 150, wadBig())
	require.NoError(t, err)
	assert.Equal(t, int64(900), paid.Int64())
}

func TestWindowSlashAccumulates(t *testing.T) {
	svc := newService(t)

	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)

	max1 := tidal.WAD - tidal.WAD/10
	_, err = svc.ApplyWindowSlash(operator, strat, tidal.WAD, max1, 60)
	require.NoError(t, err)

	// second cut of 50% applies to the original scaled shares
	_, err = svc.ApplyWindowSlash(operator, strat, max1, max1/2, 70)
	require.NoError(t, err)

	got, _, err := svc.Get(w.Root())
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.SlashedScaled.Int64())

	paid, err := svc.Complete(w.Root(), 150, wadBig())
	require.NoError(t, err)
	assert.Equal(t, int64(400), paid.Int64())
}

func TestWindowSlashClampsAtFullExposure(t *testing.T) {
	svc := newService(t)

	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)

	_, err = svc.ApplyWindowSlash(operator, strat, tidal.WAD, tidal.WAD/2, 60)
	require.NoError(t, err)
	_, err = svc.ApplyWindowSlash(operator, strat, tidal.WAD/2, tidal.WAD/10, 70)
	require.NoError(t, err)

	got, _, err := svc.Get(w.Root())
	require.NoError(t, err)
	// 500 + clamp(800) = 1000, never beyond the scaled shares
	assert.Equal(t, int64(1000), got.SlashedScaled.Int64())

	paid, err := svc.Complete(w.Root(), 150, wadBig())
	require.NoError(t, err)
	assert.Equal(t, 0, paid.Sign())
}

func TestMaturedWithdrawalOutOfSlashReach(t *testing.T) {
	svc := newService(t)

	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)

	// penalty lands at the completable block: no longer exposed
	total, err := svc.ApplyWindowSlash(operator, strat, tidal.WAD, tidal.WAD/2, w.CompletableAt)
	require.NoError(t, err)
	assert.Equal(t, 0, total.Sign())

	// and the matured entry is dropped from the index
	count, err := svc.PendingCount(operator, strat)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	paid, err := svc.Complete(w.Root(), w.CompletableAt, wadBig())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), paid.Int64())
}

func TestWindowSlashOnlyTargetedOperator(t *testing.T) {
	svc := newService(t)

	other := tidal.BytesToAddress([]byte("other-op"))
	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)

	_, err = svc.ApplyWindowSlash(other, strat, tidal.WAD, tidal.WAD/2, 60)
	require.NoError(t, err)

	got, _, err := svc.Get(w.Root())
	require.NoError(t, err)
	assert.Equal(t, 0, got.SlashedScaled.Sign())
}

func TestWindowSlashConvertsThroughCurrentFactor(t *testing.T) {
	svc := newService(t)

	w, err := svc.Queue(staker, operator, strat, big.NewInt(1000), tidal.WAD, 50, delay)
	require.NoError(t, err)

	_, err = svc.ApplyWindowSlash(operator, strat, tidal.WAD, tidal.WAD/2, 60)
	require.NoError(t, err)

	// the staker's scaling factor doubled since queue time
	doubled := new(big.Int).Mul(wadBig(), big.NewInt(2))
	paid, err := svc.Complete(w.Root(), 150, doubled)
	require.NoError(t, err)
	assert.Equal(t, 0, paid.Sign(), "penalty conversion uses the current factor")
}
