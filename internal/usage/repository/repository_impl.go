package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/crmsync/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

// Upsert writes day rows keyed on (company_id, date). Existing rows keep
// their id and created_at.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, rows []usagedomain.UsageMetric) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"query_count", "cost_usd", "updated_at"}),
		}).
		Create(&rows).Error
}

func (r *repo) ListByCompany(ctx context.Context, db *gorm.DB, companyID snowflake.ID, from, to time.Time) ([]usagedomain.UsageMetric, error) {
	var rows []usagedomain.UsageMetric
	err := db.WithContext(ctx).
		Where("company_id = ? AND date >= ? AND date <= ?", companyID, usagedomain.Day(from), usagedomain.Day(to)).
		Order("date").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
