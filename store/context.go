// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package store provides typed storage helpers over state.State,
// similar to the storage variables of a smart contract: mappings,
// scalars and queues bound to fixed slots within a namespace.
package store

import (
	"github.com/tidalprotocol/tidal/state"
	"github.com/tidalprotocol/tidal/tidal"
)

// Context binds storage helpers to a namespace within a state.
type Context struct {
	ns    tidal.Address
	state *state.State
}

// NewContext creates a storage context for the given namespace.
func NewContext(ns tidal.Address, state *state.State) *Context {
	return &Context{ns: ns, state: state}
}

// State returns the underlying state.
func (c *Context) State() *state.State {
	return c.state
}

// Namespace returns the owning namespace address.
func (c *Context) Namespace() tidal.Address {
	return c.ns
}
