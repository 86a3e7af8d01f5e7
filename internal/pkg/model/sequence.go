package model

// Sequence hands out game ids. The row is locked for the duration of a
// create so ids follow commit order without gaps.
type Sequence struct {
	Name   string `gorm:"primaryKey"`
	NextId uint64
}

func (Sequence) TableName() string {
	return "escrow_sequence"
}
