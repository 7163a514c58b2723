// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalprotocol/tidal/core/registry"
	"github.com/tidalprotocol/tidal/lvldb"
	"github.com/tidalprotocol/tidal/state"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	owner = tidal.BytesToAddress([]byte("owner"))
	sub1  = tidal.BytesToBytes32([]byte("sub-1"))
	sub2  = tidal.BytesToBytes32([]byte("sub-2"))
)

func newService(t *testing.T) *registry.Service {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	return registry.New(store.NewContext(tidal.BytesToAddress([]byte("ns")), state.New(db)))
}

func TestRegister(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.Register(owner, sub1, 11, 32_000_000_000, 0))

	sub, err := svc.Get(owner, sub1)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusActive, sub.Status)
	assert.Equal(t, uint64(11), sub.ExternalIndex)
	assert.Equal(t, uint64(32_000_000_000), sub.LastBalance)

	count, err := svc.ActiveCount(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// double registration is rejected
	assert.Error(t, svc.Register(owner, sub1, 11, 32_000_000_000, 0))
}

func TestRecordBalance(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Register(owner, sub1, 1, 100, 0))

	record, err := svc.RecordBalance(owner, sub1, 130, 1000)
	require.NoError(t, err)
	assert.True(t, record.Applied)
	assert.Equal(t, uint64(100), record.PrevBalance)
	assert.Equal(t, int64(30), record.Delta)
	assert.False(t, record.Exited)

	// same timestamp replays are skipped, not rejected
	record, err = svc.RecordBalance(owner, sub1, 150, 1000)
	require.NoError(t, err)
	assert.False(t, record.Applied)

	// older timestamps too
	record, err = svc.RecordBalance(owner, sub1, 150, 999)
	require.NoError(t, err)
	assert.False(t, record.Applied)

	// a later round applies again
	record, err = svc.RecordBalance(owner, sub1, 90, 2000)
	require.NoError(t, err)
	assert.True(t, record.Applied)
	assert.Equal(t, int64(-40), record.Delta)
}

func TestRecordZeroBalanceExits(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Register(owner, sub1, 1, 100, 0))
	require.NoError(t, svc.Register(owner, sub2, 2, 200, 0))

	record, err := svc.RecordBalance(owner, sub1, 0, 1000)
	require.NoError(t, err)
	assert.True(t, record.Applied)
	assert.True(t, record.Exited)
	assert.Equal(t, int64(-100), record.Delta)

	sub, err := svc.Get(owner, sub1)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusExited, sub.Status)

	count, err := svc.ActiveCount(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// an exited sub-account never applies again
	record, err = svc.RecordBalance(owner, sub1, 50, 2000)
	require.NoError(t, err)
	assert.False(t, record.Applied)
}

func TestRegisterMidCheckpointExcluded(t *testing.T) {
	svc := newService(t)

	// markTimestamp equal to the open round's timestamp keeps the
	// sub-account out of that round via the replay guard
	require.NoError(t, svc.Register(owner, sub1, 1, 100, 1000))

	record, err := svc.RecordBalance(owner, sub1, 120, 1000)
	require.NoError(t, err)
	assert.False(t, record.Applied)

	record, err = svc.RecordBalance(owner, sub1, 120, 1001)
	require.NoError(t, err)
	assert.True(t, record.Applied)
}

func TestUnknownSubAccountSkipped(t *testing.T) {
	svc := newService(t)

	record, err := svc.RecordBalance(owner, sub1, 100, 1000)
	require.NoError(t, err)
	assert.False(t, record.Applied)
}
