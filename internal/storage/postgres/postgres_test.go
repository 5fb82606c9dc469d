package postgres

import (
	"testing"

	"rollout_service/internal/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		Postgres: config.Postgres{
			Host:     "db.internal",
			Port:     5433,
			User:     "rollout",
			Password: "hunter2",
			DBName:   "rollout",
			SSLMode:  "require",
		},
	}

	got := dsn(cfg)
	want := "host=db.internal port=5433 user=rollout password=hunter2 database=rollout sslmode=require"

	if got != want {
		t.Fatalf("dsn mismatch:\n got  %q\n want %q", got, want)
	}
}
