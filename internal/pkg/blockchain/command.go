package blockchain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommandEscrowRelease asks the relayer to move value out of escrow.
const CommandEscrowRelease = "ESCROW_RELEASE"

// ReleasePayload is the payload of an ESCROW_RELEASE command.
type ReleasePayload struct {
	GameId uint64          `json:"gameId"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// Command is an instruction for the external relayer that executes value
// transfers. The id lets the relayer drop duplicates.
type Command struct {
	Id      string `json:"id"`
	Type    string `json:"type"`
	Payload []any  `json:"payload"`

	topic string
}

func (bc Command) GetEventTopicName() string {
	return bc.topic
}

func NewBlockchainCommand(topic string, commandType string, payload []any) Command {
	return Command{
		Id:      uuid.New().String(),
		Type:    commandType,
		Payload: payload,
		topic:   topic,
	}
}

// NewReleaseCommand builds one ESCROW_RELEASE command per payout.
func NewReleaseCommand(topic string, payload ReleasePayload) Command {
	return NewBlockchainCommand(topic, CommandEscrowRelease, []any{payload})
}
