package model

import "time"

type GameEvent struct {
	Id      uint64    `gorm:"primaryKey" json:"id"`
	GameId  uint64    `gorm:"uniqueIndex:idx_game_event_seq" json:"gameId"`
	Seq     uint64    `gorm:"uniqueIndex:idx_game_event_seq" json:"seq"`
	Name    string    `json:"name"`
	Payload string    `gorm:"type:text" json:"payload"`
	At      time.Time `json:"at"`
}

func (GameEvent) TableName() string {
	return "game_event"
}
