package clock

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	postgresNow = "SELECT CAST(EXTRACT(EPOCH FROM clock_timestamp()) * 1000000 AS BIGINT)"
	sqliteNow   = "SELECT CAST((julianday('now') - 2440587.5) * 86400000000 AS INTEGER)"
)

// Database reads the database server's clock, so every replica talking to
// the same database agrees on the time.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) Database {
	return Database{db: db}
}

func (d Database) Now(ctx context.Context) (time.Time, error) {
	query := postgresNow
	if d.db.Dialector.Name() == "sqlite" {
		query = sqliteNow
	}

	var micros int64
	if err := d.db.WithContext(ctx).Raw(query).Scan(&micros).Error; err != nil {
		return time.Time{}, errors.Wrap(err, "read database clock")
	}
	return time.UnixMicro(micros).UTC(), nil
}
