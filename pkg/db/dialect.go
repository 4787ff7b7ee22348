package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/tryon/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const defaultLockTimeoutMS = 5000

// Dialect picks the gorm driver for cfg.DBType. Every DSN bounds how long a
// statement waits on a row lock so contended balance updates surface as
// transient errors instead of hanging a request.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	if strings.TrimSpace(cfg.DBName) == "" {
		return nil, fmt.Errorf("database name is required")
	}
	switch cfg.DBType {
	case "mysql":
		return mysql.Open(mysqlDSN(cfg)), nil
	case "postgres":
		return postgres.Open(postgresDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

func lockTimeoutMS(cfg config.Config) int {
	if cfg.DBLockTimeoutMS <= 0 {
		return defaultLockTimeoutMS
	}
	return cfg.DBLockTimeoutMS
}

// innodb_lock_wait_timeout is whole seconds; unknown params are sent as SET.
func mysqlDSN(cfg config.Config) string {
	seconds := (lockTimeoutMS(cfg) + 999) / 1000
	q := url.Values{}
	q.Set("charset", "utf8mb4")
	q.Set("parseTime", "True")
	q.Set("loc", "UTC")
	q.Set("innodb_lock_wait_timeout", fmt.Sprint(seconds))
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, q.Encode())
}

// lock_timeout expiry raises 55P03, which Classify maps to ErrTransient.
func postgresDSN(cfg config.Config) string {
	parts := []string{
		"host=" + cfg.DBHost,
		"port=" + cfg.DBPort,
		"user=" + cfg.DBUser,
		"password=" + cfg.DBPassword,
		"dbname=" + cfg.DBName,
		"sslmode=" + cfg.DBSSLMode,
		"TimeZone=UTC",
		"application_name=tryon",
		fmt.Sprintf("lock_timeout=%d", lockTimeoutMS(cfg)),
	}
	return strings.Join(parts, " ")
}

func sqliteDSN(cfg config.Config) string {
	name := cfg.DBName
	if name != ":memory:" && !strings.HasSuffix(name, ".db") {
		name += ".db"
	}
	return fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=1", name, lockTimeoutMS(cfg))
}
