package model

type GameStatus string

const (
	GameOpen      GameStatus = "OPEN"
	GameCommitted GameStatus = "COMMITTED"
	GameRevealed  GameStatus = "REVEALED"
	GameFinished  GameStatus = "FINISHED"
)
