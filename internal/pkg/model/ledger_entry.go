package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryKind string

const (
	LedgerEscrow  LedgerEntryKind = "ESCROW"
	LedgerRelease LedgerEntryKind = "RELEASE"
)

// LedgerEntry is one movement of value into or out of a game's escrow.
type LedgerEntry struct {
	Id        uint64          `gorm:"primaryKey" json:"id"`
	GameId    uint64          `gorm:"index" json:"gameId"`
	Account   string          `json:"account"`
	Kind      LedgerEntryKind `json:"kind"`
	Amount    decimal.Decimal `gorm:"type:numeric" json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
