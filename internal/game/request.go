package game

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
)

type CreateGameRequest struct {
	Commitment string          `json:"commitment" binding:"required"`
	Stake      decimal.Decimal `json:"stake"`
}

type JoinGameRequest struct {
	Commitment string          `json:"commitment" binding:"required"`
	Stake      decimal.Decimal `json:"stake"`
}

// RevealRequest takes the move as a number (1) or a name ("rock").
type RevealRequest struct {
	Move json.RawMessage `json:"move" binding:"required"`
	Salt string          `json:"salt"`
}

type CommitmentRequest struct {
	Move json.RawMessage `json:"move" binding:"required"`
	Salt string          `json:"salt"`
}

type CreateGameResponse struct {
	GameId uint64 `json:"gameId"`
}

type CommitmentResponse struct {
	Move       escrow.Move `json:"move"`
	Salt       string      `json:"salt"`
	Commitment string      `json:"commitment"`
}

// parseCommitment accepts 0x-prefixed 32 byte hex.
func parseCommitment(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// parseMove reads a JSON number or string. Values that are well formed but
// not a move come back as an invalid Move so the state machine can reject
// them in its own order; only malformed JSON fails.
func parseMove(raw json.RawMessage) (escrow.Move, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 || n > math.MaxUint8 || n != math.Trunc(n) {
			return escrow.Move(math.MaxUint8), true
		}
		return escrow.Move(n), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return escrow.None, false
	}
	m, err := escrow.ParseMove(s)
	if err != nil {
		return escrow.Move(math.MaxUint8), true
	}
	return m, true
}
