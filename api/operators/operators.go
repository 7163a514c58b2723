// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package operators

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/api/utils"
	"github.com/tidalprotocol/tidal/core"
	"github.com/tidalprotocol/tidal/tidal"
)

type Operators struct {
	core *core.Core
}

func New(core *core.Core) *Operators {
	return &Operators{core}
}

// Magnitude is the JSON form of an operator capacity record.
type Magnitude struct {
	Max        uint64 `json:"max"`
	Encumbered uint64 `json:"encumbered"`
}

// PendingDiff is the JSON form of a pending allocation change.
type PendingDiff struct {
	Decrease    bool   `json:"decrease"`
	Amount      uint64 `json:"amount"`
	EffectBlock uint32 `json:"effectBlock"`
}

// Allocation is the JSON form of an allocation record.
type Allocation struct {
	Magnitude uint64       `json:"magnitude"`
	Pending   *PendingDiff `json:"pending"`
}

func (o *Operators) handleGetMagnitude(w http.ResponseWriter, req *http.Request) error {
	operator, err := tidal.ParseAddress(mux.Vars(req)["operator"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "operator"))
	}
	strategy, err := tidal.ParseBytes32(mux.Vars(req)["strategy"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "strategy"))
	}
	info, err := o.core.MagnitudeInfo(*operator, strategy)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Magnitude{
		Max:        info.Max,
		Encumbered: info.Encumbered,
	})
}

func (o *Operators) handleGetAllocation(w http.ResponseWriter, req *http.Request) error {
	operator, err := tidal.ParseAddress(mux.Vars(req)["operator"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "operator"))
	}
	set, err := tidal.ParseBytes32(mux.Vars(req)["set"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "set"))
	}
	strategy, err := tidal.ParseBytes32(mux.Vars(req)["strategy"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "strategy"))
	}
	block, err := parseBlock(req.URL.Query().Get("block"))
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "block"))
	}
	alloc, err := o.core.GetAllocation(*operator, set, strategy, block)
	if err != nil {
		return err
	}
	out := &Allocation{Magnitude: alloc.Magnitude}
	if alloc.Pending != nil {
		out.Pending = &PendingDiff{
			Decrease:    alloc.Pending.Decrease,
			Amount:      alloc.Pending.Amount,
			EffectBlock: alloc.Pending.EffectBlock,
		}
	}
	return utils.WriteJSON(w, out)
}

func (o *Operators) handleGetShares(w http.ResponseWriter, req *http.Request) error {
	operator, err := tidal.ParseAddress(mux.Vars(req)["operator"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "operator"))
	}
	strategy, err := tidal.ParseBytes32(mux.Vars(req)["strategy"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "strategy"))
	}
	shares, err := o.core.OperatorShares(*operator, strategy)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"shares": shares.String()})
}

func parseBlock(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	block, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(block), nil
}

func (o *Operators) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{operator}/magnitudes/{strategy}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(o.handleGetMagnitude))
	sub.Path("/{operator}/allocations/{set}/{strategy}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(o.handleGetAllocation))
	sub.Path("/{operator}/shares/{strategy}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(o.handleGetShares))
}
