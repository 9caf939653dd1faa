package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultTimeout = 10 * time.Second

// Connect opens and pings the MySQL database described by cfg.
func Connect(cfg Config) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), timeout(cfg))
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// DSN renders cfg as a go-sql-driver data source name. Credentials are
// written verbatim and need no escaping.
func DSN(cfg Config) string {
	d := mysql.NewConfig()
	d.User = cfg.User
	d.Passwd = cfg.Password
	d.Net = "tcp"
	d.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	d.DBName = cfg.Name
	d.ParseTime = true
	d.Loc = time.UTC
	d.Params = map[string]string{"charset": "utf8mb4"}
	d.Timeout = timeout(cfg)
	d.ReadTimeout = d.Timeout
	d.WriteTimeout = d.Timeout
	return d.FormatDSN()
}

func timeout(cfg Config) time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}
