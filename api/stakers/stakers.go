// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stakers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/api/utils"
	"github.com/tidalprotocol/tidal/core"
	"github.com/tidalprotocol/tidal/tidal"
)

type Stakers struct {
	core *core.Core
}

func New(core *core.Core) *Stakers {
	return &Stakers{core}
}

// Position is the JSON form of a staker's deposit in one asset class.
type Position struct {
	DepositShares string         `json:"depositShares"`
	ScalingFactor string         `json:"scalingFactor"`
	Withdrawable  string         `json:"withdrawable"`
	Operator      *tidal.Address `json:"operator"`
}

func (s *Stakers) handleGetPosition(w http.ResponseWriter, req *http.Request) error {
	staker, err := tidal.ParseAddress(mux.Vars(req)["staker"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "staker"))
	}
	strategy, err := tidal.ParseBytes32(mux.Vars(req)["strategy"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "strategy"))
	}
	position, err := s.core.GetStakerPosition(*staker, strategy)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Position{
		DepositShares: position.DepositShares.String(),
		ScalingFactor: position.ScalingFactor.String(),
		Withdrawable:  position.Withdrawable.String(),
		Operator:      position.Operator,
	})
}

func (s *Stakers) handleGetBeaconFactor(w http.ResponseWriter, req *http.Request) error {
	staker, err := tidal.ParseAddress(mux.Vars(req)["staker"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "staker"))
	}
	factor, err := s.core.BeaconFactor(*staker)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"factor": factor})
}

func (s *Stakers) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{staker}/shares/{strategy}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetPosition))
	sub.Path("/{staker}/beacon-factor").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetBeaconFactor))
}
