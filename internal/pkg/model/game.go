package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Game struct {
	Id          uint64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Player1     string          `gorm:"index" json:"player1"`
	Player2     *string         `gorm:"index" json:"player2"`
	Wager       decimal.Decimal `gorm:"type:numeric" json:"wager"`
	Commit1     string          `gorm:"size:66" json:"commit1"`
	Commit2     *string         `gorm:"size:66" json:"commit2"`
	Reveal1     uint8           `json:"reveal1"`
	Reveal2     uint8           `json:"reveal2"`
	GameStatus  GameStatus      `gorm:"index" json:"gameStatus"`
	TimeCreated time.Time       `json:"timeCreated"`
	TimeJoined  *time.Time      `json:"timeJoined"`
}

func (Game) TableName() string {
	return "escrow_game"
}
