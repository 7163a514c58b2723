// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tidalprotocol/tidal/tidal"
)

// Key constrains mapping key types to byte-representable ones.
type Key interface {
	Bytes() []byte
}

// Mapping is a key/value storage abstraction, similar to a mapping in
// Solidity. Values are RLP encoded; slots are derived from the base
// position and the key.
type Mapping[K Key, V any] struct {
	context *Context
	basePos tidal.Bytes32
}

// NewMapping creates a mapping rooted at the given slot.
func NewMapping[K Key, V any](context *Context, pos tidal.Bytes32) *Mapping[K, V] {
	return &Mapping[K, V]{context: context, basePos: pos}
}

// Get retrieves the value for the key. A missing entry decodes to the
// zero value.
func (m *Mapping[K, V]) Get(key K) (value V, err error) {
	position := tidal.Blake2b(key.Bytes(), m.basePos.Bytes())
	err = m.context.state.DecodeStorage(m.context.ns, position, func(raw []byte) error {
		if reflect.ValueOf(value).Kind() == reflect.Ptr {
			value = reflect.New(reflect.TypeOf(value).Elem()).Interface().(V)
		}
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &value)
	})
	return
}

// Set stores the value for the key.
func (m *Mapping[K, V]) Set(key K, value V) error {
	position := tidal.Blake2b(key.Bytes(), m.basePos.Bytes())
	return m.context.state.EncodeStorage(m.context.ns, position, func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}

// Delete clears the entry for the key.
func (m *Mapping[K, V]) Delete(key K) error {
	position := tidal.Blake2b(key.Bytes(), m.basePos.Bytes())
	return m.context.state.EncodeStorage(m.context.ns, position, func() ([]byte, error) {
		return nil, nil
	})
}

// Has reports whether the key maps to a non-empty entry.
func (m *Mapping[K, V]) Has(key K) (bool, error) {
	position := tidal.Blake2b(key.Bytes(), m.basePos.Bytes())
	raw, err := m.context.state.GetRawStorage(m.context.ns, position)
	if err != nil {
		return false, err
	}
	return len(raw) > 0, nil
}
