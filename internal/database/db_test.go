package database

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	got := dsn("waitlist", "s3cr3t/pass", "db.internal", "3306", "waitlist_db")

	cfg, err := mysql.ParseDSN(got)
	require.NoError(t, err)
	require.Equal(t, "waitlist", cfg.User)
	require.Equal(t, "s3cr3t/pass", cfg.Passwd, "credentials with special characters survive the round-trip")
	require.Equal(t, "db.internal:3306", cfg.Addr)
	require.Equal(t, "waitlist_db", cfg.DBName)
	require.True(t, cfg.ParseTime, "DATETIME columns must scan into time.Time")
	require.Equal(t, time.UTC, cfg.Loc, "deadline and expiry comparisons rely on UTC round-trips")
	require.Equal(t, "utf8mb4", cfg.Params["charset"])
}

func TestDSN_EmptyPassword(t *testing.T) {
	cfg, err := mysql.ParseDSN(dsn("waitlist", "", "localhost", "3306", "waitlist_db"))
	require.NoError(t, err)
	require.Equal(t, "waitlist", cfg.User)
	require.Empty(t, cfg.Passwd)
}
