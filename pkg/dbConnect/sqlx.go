package dbconnect

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/newrelic/go-agent/v3/integrations/nrpq"
)

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	Dbuser          string        `yaml:"user"`
	Dbpassword      string        `yaml:"password"`
	Dbname          string        `yaml:"name"`
	Sslmode         string        `yaml:"sslmode"`
	TablePrefix     string        `yaml:"table_prefix"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Instrumented switches to the New Relic wrapped driver.
	Instrumented bool `yaml:"instrumented"`
}

// DSN builds the lib/pq keyword/value connection string.
func (c DBConfig) DSN() string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host,
		c.Port,
		c.Dbuser,
		c.Dbpassword,
		c.Dbname,
		sslmode,
	)
}

// DriverName is "nrpostgres" when instrumentation is on, else "postgres".
func (c DBConfig) DriverName() string {
	if c.Instrumented {
		return "nrpostgres"
	}
	return "postgres"
}

func ConnectSqlx(ctx context.Context, dbConfig DBConfig) (db *sqlx.DB, err error) {
	db, err = sqlx.ConnectContext(ctx, dbConfig.DriverName(), dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if dbConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	}
	if dbConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return
}
