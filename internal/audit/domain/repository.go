package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	CompanyID snowflake.ID
	Action    string
	StartAt   *time.Time
	EndAt     *time.Time
	Limit     int
}

// Repository writes and lists audit rows. Insert takes the caller's db
// handle so writes can ride the mutating transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
