package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolchain/clock"
	"github.com/tolelom/tolchain/config"
)

// Chain is the read surface Handler needs from the running node: the
// committed ring plus height/tip, for operator/debugging RPCs (spec §6's
// observable state, not a consensus input).
type Chain interface {
	Height() int64
	Tip() clock.ChainEntry
	Snapshot() []clock.ChainEntry
}

// Pools is the pending-pool read/write surface Handler needs to expose
// submitPing and the pool-inspection RPCs.
type Pools interface {
	PingPool() map[string]clock.Ping
	PingPoolSize() int
	TickPoolSize() int
	AddPing(addr string, p clock.Ping)
}

// Validator checks a hand-submitted ping before it's admitted to the pool.
type Validator interface {
	ValidatePing(p clock.Ping, requireSignature bool) bool
}

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	chain    Chain
	pools    Pools
	validate Validator
	nodeID   string // this node's ID, echoed back so a caller can confirm who answered
}

// NewHandler creates an RPC Handler.
func NewHandler(chain Chain, pools Pools, validate Validator, nodeID string) *Handler {
	return &Handler{chain: chain, pools: pools, validate: validate, nodeID: nodeID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getHeight":
		return okResponse(req.ID, h.chain.Height())

	case "getTip":
		return okResponse(req.ID, h.chain.Tip())

	case "getChainSnapshot":
		return h.getChainSnapshot(req)

	case "getPendingPings":
		return okResponse(req.ID, h.pools.PingPool())

	case "getPoolSizes":
		return okResponse(req.ID, map[string]int{
			"ping_pool": h.pools.PingPoolSize(),
			"tick_pool": h.pools.TickPoolSize(),
		})

	case "submitPing":
		return h.submitPing(req)

	case "getNodeID":
		return okResponse(req.ID, h.nodeID)

	case "getGenesis":
		return okResponse(req.ID, config.Genesis())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getChainSnapshot(req Request) Response {
	var params struct {
		Limit int `json:"limit"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		}
	}
	snap := h.chain.Snapshot()
	if params.Limit > 0 && params.Limit < len(snap) {
		snap = snap[len(snap)-params.Limit:]
	}
	return okResponse(req.ID, snap)
}

// submitPing admits a hand-submitted ping to the local ping pool after
// validation, mirroring the gossip path consensus.Scheduler uses for
// peer-broadcast pings (spec §6 ping_worker's admission checks).
func (h *Handler) submitPing(req Request) Response {
	var p clock.Ping
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if !h.validate.ValidatePing(p, true) {
		return errResponse(req.ID, CodeInvalidParams, "ping failed validation")
	}
	h.pools.AddPing(p.PubKey, p)
	return okResponse(req.ID, map[string]string{"pubkey": p.PubKey})
}
