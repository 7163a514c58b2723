// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/tidal"
)

type index uint64

func (i index) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(i))
	return b[:]
}

// Queue is a durable FIFO over storage slots. Entries are addressable
// by index between head and tail, so in-place updates of pending
// entries are possible while preserving FIFO order.
type Queue[V any] struct {
	context  *Context
	basePos  tidal.Bytes32
	headSlot tidal.Bytes32
	tailSlot tidal.Bytes32
	entries  *Mapping[index, V]
}

// NewQueue creates a queue rooted at the given slot.
func NewQueue[V any](context *Context, pos tidal.Bytes32) *Queue[V] {
	return &Queue[V]{
		context:  context,
		basePos:  pos,
		headSlot: tidal.Blake2b(pos.Bytes(), []byte("head")),
		tailSlot: tidal.Blake2b(pos.Bytes(), []byte("tail")),
		entries:  NewMapping[index, V](context, tidal.Blake2b(pos.Bytes(), []byte("entries"))),
	}
}

// Head returns the index of the front entry.
func (q *Queue[V]) Head() (uint64, error) {
	return q.getUint64(q.headSlot)
}

// Tail returns the index one past the back entry.
func (q *Queue[V]) Tail() (uint64, error) {
	return q.getUint64(q.tailSlot)
}

// Len returns the number of entries.
func (q *Queue[V]) Len() (uint64, error) {
	head, err := q.Head()
	if err != nil {
		return 0, err
	}
	tail, err := q.Tail()
	if err != nil {
		return 0, err
	}
	return tail - head, nil
}

// Push appends an entry at the back and returns its index.
func (q *Queue[V]) Push(value V) (uint64, error) {
	tail, err := q.Tail()
	if err != nil {
		return 0, err
	}
	if err := q.entries.Set(index(tail), value); err != nil {
		return 0, err
	}
	return tail, q.setUint64(q.tailSlot, tail+1)
}

// PopFront removes and returns the front entry.
func (q *Queue[V]) PopFront() (value V, err error) {
	head, err := q.Head()
	if err != nil {
		return value, err
	}
	tail, err := q.Tail()
	if err != nil {
		return value, err
	}
	if head >= tail {
		return value, errors.New("pop on empty queue")
	}
	value, err = q.entries.Get(index(head))
	if err != nil {
		return value, err
	}
	if err := q.entries.Delete(index(head)); err != nil {
		return value, err
	}
	return value, q.setUint64(q.headSlot, head+1)
}

// Get returns the entry at the given index. The index must lie within
// [head, tail).
func (q *Queue[V]) Get(i uint64) (value V, err error) {
	return q.entries.Get(index(i))
}

// Set overwrites the entry at the given index.
func (q *Queue[V]) Set(i uint64, value V) error {
	return q.entries.Set(index(i), value)
}

// Iterate walks entries front to back. The walk stops early when the
// callback returns false.
func (q *Queue[V]) Iterate(cb func(i uint64, value V) (bool, error)) error {
	head, err := q.Head()
	if err != nil {
		return err
	}
	tail, err := q.Tail()
	if err != nil {
		return err
	}
	for i := head; i < tail; i++ {
		value, err := q.entries.Get(index(i))
		if err != nil {
			return err
		}
		next, err := cb(i, value)
		if err != nil {
			return err
		}
		if !next {
			return nil
		}
	}
	return nil
}

func (q *Queue[V]) getUint64(slot tidal.Bytes32) (uint64, error) {
	var value uint64
	err := q.context.state.DecodeStorage(q.context.ns, slot, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &value)
	})
	return value, err
}

func (q *Queue[V]) setUint64(slot tidal.Bytes32, value uint64) error {
	return q.context.state.EncodeStorage(q.context.ns, slot, func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}
