// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/kv"
	"github.com/tidalprotocol/tidal/stackedmap"
	"github.com/tidalprotocol/tidal/tidal"
)

// State provides durable keyed storage with checkpoint/revert support.
// Values are namespaced by owner address and keyed by 32-byte slots.
// All reads and writes go through a journaling stacked map, so a whole
// operation can be reverted without partial effects, then committed to
// the backing kv store in one batch.
type State struct {
	store kv.GetPutter
	sm    *stackedmap.StackedMap
}

type storageKey struct {
	ns  tidal.Address
	key tidal.Bytes32
}

func (k storageKey) storeKey() []byte {
	b := make([]byte, 0, len(k.ns)+len(k.key))
	b = append(b, k.ns.Bytes()...)
	return append(b, k.key.Bytes()...)
}

// New creates a state instance backed by the given kv store.
func New(store kv.GetPutter) *State {
	state := &State{store: store}
	state.sm = stackedmap.New(func(key any) (any, bool, error) {
		raw, err := store.Get(key.(storageKey).storeKey())
		if err != nil {
			if store.IsNotFound(err) {
				return rlp.RawValue(nil), true, nil
			}
			return nil, false, err
		}
		return rlp.RawValue(raw), true, nil
	})
	return state
}

// GetRawStorage gets the raw RLP value for the given slot.
func (s *State) GetRawStorage(ns tidal.Address, key tidal.Bytes32) (rlp.RawValue, error) {
	v, _, err := s.sm.Get(storageKey{ns, key})
	if err != nil {
		return nil, errors.Wrap(err, "get storage")
	}
	return v.(rlp.RawValue), nil
}

// SetRawStorage sets the raw RLP value for the given slot.
// An empty raw value clears the slot.
func (s *State) SetRawStorage(ns tidal.Address, key tidal.Bytes32, raw rlp.RawValue) {
	s.sm.Put(storageKey{ns, key}, raw)
}

// EncodeStorage sets storage value encoded by given enc callback.
// An empty returned value clears the slot.
func (s *State) EncodeStorage(ns tidal.Address, key tidal.Bytes32, enc func() ([]byte, error)) error {
	raw, err := enc()
	if err != nil {
		return errors.Wrap(err, "encode storage")
	}
	s.SetRawStorage(ns, key, raw)
	return nil
}

// DecodeStorage gets and decodes storage value via the dec callback.
// The callback receives a nil slice when the slot is unset.
func (s *State) DecodeStorage(ns tidal.Address, key tidal.Bytes32, dec func([]byte) error) error {
	raw, err := s.GetRawStorage(ns, key)
	if err != nil {
		return err
	}
	return dec(raw)
}

// NewCheckpoint makes a checkpoint of current state.
// It returns the checkpoint revision to be passed to RevertTo.
func (s *State) NewCheckpoint() int {
	return s.sm.Push()
}

// RevertTo reverts the state to the given checkpoint revision.
// All writes made since the checkpoint are discarded.
func (s *State) RevertTo(revision int) {
	s.sm.PopTo(revision)
}

// Commit writes all journaled changes to the backing store in a single
// batch and resets the journal. Open checkpoints are folded in, since
// the journal spans every level of the stack.
// On write failure the journal is already discarded and the backing
// store is untouched, so the state stays consistent with the store.
func (s *State) Commit() error {
	// last write per key wins
	pending := make(map[storageKey]rlp.RawValue)
	s.sm.Journal(func(key, value any) bool {
		pending[key.(storageKey)] = value.(rlp.RawValue)
		return true
	})

	s.sm.PopTo(0)
	s.sm.Push()

	batch := s.store.NewBatch()
	for key, raw := range pending {
		if len(raw) == 0 {
			if err := batch.Delete(key.storeKey()); err != nil {
				return errors.Wrap(err, "commit delete")
			}
			continue
		}
		if err := batch.Put(key.storeKey(), raw); err != nil {
			return errors.Wrap(err, "commit put")
		}
	}
	return errors.Wrap(batch.Write(), "commit write")
}
