// Package store owns database bootstrap and tenancy scoping for the
// payroll core. Production runs on Postgres; tests open an in-memory
// SQLite database with the same schema.
package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
)

var (
	db      *gorm.DB
	once    sync.Once
	testSeq int64
)

// Init opens the shared connection using the DATABASE_URL environment
// variable and migrates the schema.
func Init(ctx context.Context) error {
	var err error
	once.Do(func() {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			err = fmt.Errorf("DATABASE_URL environment variable not set")
			return
		}
		db, err = Open(dsn)
	})
	return err
}

// DB returns the shared connection. Init or OpenTest must have run.
func DB() *gorm.DB {
	return db
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// OpenTest opens an in-memory SQLite database with the full schema.
// Each call returns an isolated database; the shared cache keeps the
// pool's connections on the same store.
func OpenTest() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", atomic.AddInt64(&testSeq, 1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Migrate creates or updates every table of the logical data model.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.AuditLog{},
		&models.Department{},
		&models.Grade{},
		&models.Bank{},
		&models.BankAccount{},
		&models.Employee{},
		&models.EmploymentHistory{},
		&models.PayComponent{},
		&models.SalaryBand{},
		&models.SalaryLevel{},
		&models.SalaryNotch{},
		&models.SalaryStructure{},
		&models.SalaryStructureComponent{},
		&models.EmployeeSalary{},
		&models.EmployeeSalaryComponent{},
		&models.SalaryUpgradeRequest{},
		&models.EmployeeTransaction{},
		&models.AdHocPayment{},
		&models.TaxBracket{},
		&models.SSNITRate{},
		&models.TaxRelief{},
		&models.OvertimeBonusTaxConfig{},
		&models.PayrollCalendar{},
		&models.PayrollPeriod{},
		&models.PayrollRun{},
		&models.PayrollItem{},
		&models.PayrollItemDetail{},
		&models.BackpayRequest{},
		&models.BackpayDetail{},
		&models.ImportSession{},
		&models.ImportPreviewRow{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
