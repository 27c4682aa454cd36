// Package database owns the Postgres connection pool shared by the
// repositories and the schema manager.
package database

import (
	"fmt"
	"net/url"
	"time"
)

// Config defines what the database package needs
type Config struct {
	Driver          string
	DSN             string
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectTimeout bounds establishing a single connection
	ConnectTimeout time.Duration
	// ConnectRetries is the number of retries when the first ping fails
	ConnectRetries uint64

	// AWS RDS IAM authentication (optional)
	UseIAM    bool
	AWSRegion string
}

// NewConfig creates config with the pool sizing used in production
func NewConfig() *Config {
	return &Config{
		Driver:          "postgres",
		Port:            5432,
		SSLMode:         "require",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 30 * time.Second,
		ConnectTimeout:  2 * time.Second,
		ConnectRetries:  5,
	}
}

// Validate reports a missing connection target
func (c *Config) Validate() error {
	if c.DSN == "" && c.Host == "" {
		return ErrInvalidDatabaseConfig
	}
	if c.UseIAM && c.AWSRegion == "" {
		return ErrMissingAWSRegion
	}
	return nil
}

// GetDSN returns the connection string for the database, using password as
// the credential (an IAM token when UseIAM is set)
func (c *Config) GetDSN(password string) string {
	if c.DSN != "" {
		return withConnectTimeout(c.DSN, c.ConnectTimeout)
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		if password != "" {
			u.User = url.UserPassword(c.Username, password)
		} else {
			u.User = url.User(c.Username)
		}
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()

	return withConnectTimeout(u.String(), c.ConnectTimeout)
}

// withConnectTimeout appends lib/pq's connect_timeout (whole seconds, at least one)
func withConnectTimeout(dsn string, timeout time.Duration) string {
	if timeout <= 0 {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return dsn
	}
	q := u.Query()
	if q.Get("connect_timeout") != "" {
		return dsn
	}
	secs := int(timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	q.Set("connect_timeout", fmt.Sprintf("%d", secs))
	u.RawQuery = q.Encode()
	return u.String()
}
