package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var (
	DB   *gorm.DB
	gate *Gate
)

// Config holds connection and pool settings.
type Config struct {
	User           string
	Password       string
	Host           string
	Port           string
	Name           string
	MaxOpenConns   int
	MaxIdleConns   int
	AcquireTimeout time.Duration
	AutoMigrate    bool
}

// LoadConfig reads database settings from the environment.
func LoadConfig() Config {
	return Config{
		User:           env.GetEnv("DB_USER", ""),
		Password:       env.GetEnv("DB_PASSWORD", ""),
		Host:           env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:           env.GetEnv("DB_PORT", "3306"),
		Name:           env.GetEnv("DB_NAME", ""),
		MaxOpenConns:   env.GetEnvInt("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:   env.GetEnvInt("DB_MAX_IDLE_CONNS", 5),
		AcquireTimeout: env.GetEnvDuration("DB_ACQUIRE_TIMEOUT", 250*time.Millisecond),
		AutoMigrate:    env.GetEnvBool("DB_AUTO_MIGRATE", false),
	}
}

// DSN renders the MySQL data source name. Instants are stored in UTC.
func (c Config) DSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

func SetupDatabase() {
	cfg := LoadConfig()

	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       cfg.DSN(),
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			Logger:  logger.Default.LogMode(logger.Warn),
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			break
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		panic(err)
	}

	if err := ConfigurePool(DB, cfg); err != nil {
		panic(err)
	}
	gate = NewGate(cfg.MaxOpenConns, cfg.AcquireTimeout)

	if cfg.AutoMigrate {
		if err := AutoMigrate(DB); err != nil {
			panic(err)
		}
	}
}

// ConfigurePool bounds the underlying sql.DB pool.
func ConfigurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return nil
}

// AutoMigrate creates or updates every table the pipeline reads or writes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CodeMapping{},
		&models.CatalogEntry{},
		&models.Bundle{},
		&models.Facility{},
		&models.PricingTier{},
		&models.Certificate{},
		&models.Transaction{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// GetGate returns the pool gate created by SetupDatabase.
func GetGate() *Gate {
	return gate
}
