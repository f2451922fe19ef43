package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSN returns a go-sql-driver/mysql data source name. A configured connection string
// is parsed and re-rendered; otherwise the discrete fields are used. Times are parsed
// in UTC either way.
func (d *DatabaseConfig) DSN() (string, error) {
	var cfg *mysql.Config
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
		if d.Database != "" {
			cfg.DBName = d.Database
		}
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if d.TLSMode != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = d.TLSMode
	}
	if d.ConnectionTimeout > 0 && cfg.Timeout == 0 {
		cfg.Timeout = d.ConnectionTimeout
	}
	return cfg.FormatDSN(), nil
}

// EffectiveDatabaseName returns the schema to introspect: database.database, or the
// database named in the DSN.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	if name := strings.TrimSpace(d.Database); name != "" {
		return name, nil
	}
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		if parsed.DBName != "" {
			return parsed.DBName, nil
		}
	}
	return "", fmt.Errorf("no database configured: set database.database or include /<database> in database.dsn")
}
