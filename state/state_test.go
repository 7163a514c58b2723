// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalprotocol/tidal/lvldb"
	"github.com/tidalprotocol/tidal/state"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	ns  = tidal.BytesToAddress([]byte("test-ns"))
	key = tidal.BytesToBytes32([]byte("key"))
)

func newState(t *testing.T) (*state.State, *lvldb.LevelDB) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	return state.New(db), db
}

func TestStorageRoundTrip(t *testing.T) {
	st, _ := newState(t)

	raw, err := rlp.EncodeToBytes(uint64(42))
	require.NoError(t, err)
	st.SetRawStorage(ns, key, raw)

	got, err := st.GetRawStorage(ns, key)
	require.NoError(t, err)
	assert.Equal(t, rlp.RawValue(raw), got)

	// unset slot reads empty
	got, err = st.GetRawStorage(ns, tidal.BytesToBytes32([]byte("other")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheckpointRevert(t *testing.T) {
	st, _ := newState(t)

	raw1, _ := rlp.EncodeToBytes(uint64(1))
	raw2, _ := rlp.EncodeToBytes(uint64(2))

	st.SetRawStorage(ns, key, raw1)

	rev := st.NewCheckpoint()
	st.SetRawStorage(ns, key, raw2)

	got, err := st.GetRawStorage(ns, key)
	require.NoError(t, err)
	assert.Equal(t, rlp.RawValue(raw2), got)

	st.RevertTo(rev)

	got, err = st.GetRawStorage(ns, key)
	require.NoError(t, err)
	assert.Equal(t, rlp.RawValue(raw1), got)
}

func TestCommitPersists(t *testing.T) {
	st, db := newState(t)

	raw, _ := rlp.EncodeToBytes(uint64(7))
	st.SetRawStorage(ns, key, raw)
	require.NoError(t, st.Commit())

	// a fresh state over the same store reads the committed value
	st2 := state.New(db)
	got, err := st2.GetRawStorage(ns, key)
	require.NoError(t, err)
	assert.Equal(t, rlp.RawValue(raw), got)
}

func TestCommitFoldsOpenCheckpoints(t *testing.T) {
	st, db := newState(t)

	rev := st.NewCheckpoint()
	assert.Equal(t, 1, rev)

	raw, _ := rlp.EncodeToBytes(uint64(3))
	st.SetRawStorage(ns, key, raw)
	require.NoError(t, st.Commit())

	// the committed write is visible to a fresh state
	st2 := state.New(db)
	got, err := st2.GetRawStorage(ns, key)
	require.NoError(t, err)
	assert.Equal(t, rlp.RawValue(raw), got)

	// the checkpoint stack is reset after commit
	assert.Equal(t, 1, st.NewCheckpoint())
}

func TestEmptyRawClearsSlot(t *testing.T) {
	st, db := newState(t)

	raw, _ := rlp.EncodeToBytes(uint64(9))
	st.SetRawStorage(ns, key, raw)
	require.NoError(t, st.Commit())

	st.SetRawStorage(ns, key, nil)
	require.NoError(t, st.Commit())

	st2 := state.New(db)
	got, err := st2.GetRawStorage(ns, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRevertedWritesNotCommitted(t *testing.T) {
	st, db := newState(t)

	raw1, _ := rlp.EncodeToBytes(uint64(1))
	raw2, _ := rlp.EncodeToBytes(uint64(2))

	rev := st.NewCheckpoint()
	st.SetRawStorage(ns, key, raw1)
	st.RevertTo(rev)

	rev = st.NewCheckpoint()
	st.SetRawStorage(ns, key, raw2)
	st.RevertTo(rev)
	require.NoError(t, st.Commit())

	st2 := state.New(db)
	got, err := st2.GetRawStorage(ns, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}
