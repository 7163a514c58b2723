// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package wad implements fixed-point arithmetic on 1e18-scaled values
// with explicit rounding direction. Penalty math must never round in
// favor of the penalized party, so every helper states its direction.
package wad

import (
	"math/big"

	"github.com/tidalprotocol/tidal/tidal"
)

var wadBig = new(big.Int).SetUint64(tidal.WAD)

// MulDiv returns floor(a * b / c).
func MulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Div(out, c)
}

// MulDivCeil returns ceil(a * b / c).
func MulDivCeil(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	out.Add(out, new(big.Int).Sub(c, big.NewInt(1)))
	return out.Div(out, c)
}

// MulWad returns floor(a * f / WAD).
func MulWad(a *big.Int, f uint64) *big.Int {
	return MulDiv(a, new(big.Int).SetUint64(f), wadBig)
}

// MulWadCeil returns ceil(a * f / WAD).
func MulWadCeil(a *big.Int, f uint64) *big.Int {
	return MulDivCeil(a, new(big.Int).SetUint64(f), wadBig)
}

// DivWad returns floor(a * WAD / f).
func DivWad(a *big.Int, f uint64) *big.Int {
	return MulDiv(a, wadBig, new(big.Int).SetUint64(f))
}

// DivWadCeil returns ceil(a * WAD / f).
func DivWadCeil(a *big.Int, f uint64) *big.Int {
	return MulDivCeil(a, wadBig, new(big.Int).SetUint64(f))
}

// MulWadU64 returns floor(m * f / WAD) for WAD-bounded magnitudes.
func MulWadU64(m, f uint64) uint64 {
	out := new(big.Int).Mul(new(big.Int).SetUint64(m), new(big.Int).SetUint64(f))
	return out.Div(out, wadBig).Uint64()
}

// MulWadCeilU64 returns ceil(m * f / WAD) for WAD-bounded magnitudes.
func MulWadCeilU64(m, f uint64) uint64 {
	out := new(big.Int).Mul(new(big.Int).SetUint64(m), new(big.Int).SetUint64(f))
	out.Add(out, new(big.Int).Sub(wadBig, big.NewInt(1)))
	return out.Div(out, wadBig).Uint64()
}

// Compose multiplies two WAD-scaled factors, flooring: floor(a * b / WAD).
// Factor composition is multiplicative so penalties compound.
func Compose(a, b uint64) uint64 {
	return MulWadU64(a, b)
}
