// Package testutil holds shared fixtures for repository and engine tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Schema mirrors the embedded Postgres migrations in SQLite syntax.
var Schema = []string{
	`CREATE TABLE companies (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		domain TEXT,
		industry TEXT,
		employee_count INTEGER,
		wallet_address TEXT,
		monthly_query_volume INTEGER NOT NULL DEFAULT 0,
		mrr_usd NUMERIC NOT NULL DEFAULT 0,
		withorb_customer_id TEXT,
		withorb_sync_date DATETIME,
		withorb_last_usage_sync DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_companies_withorb_customer_id
		ON companies (withorb_customer_id) WHERE withorb_customer_id IS NOT NULL`,
	`CREATE TABLE company_wallets (
		id INTEGER PRIMARY KEY,
		company_id INTEGER NOT NULL,
		wallet_address TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT false,
		created_at DATETIME,
		UNIQUE (company_id, wallet_address)
	)`,
	`CREATE TABLE usage_metrics (
		id INTEGER PRIMARY KEY,
		company_id INTEGER NOT NULL,
		date DATE NOT NULL,
		query_count INTEGER NOT NULL DEFAULT 0,
		cost_usd NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (company_id, date)
	)`,
}

// OpenSQLite returns an isolated in-memory database with the reconciliation schema.
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func MustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
