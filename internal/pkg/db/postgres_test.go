package db

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-casino-bot/internal/config"
)

func TestTune(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.DatabaseConfig
		wantMax      int32
		wantMin      int32
		wantLifetime time.Duration
	}{
		{"explicit", config.DatabaseConfig{PoolSize: 20, MaxConnLifetime: 5 * time.Minute}, 20, 5, 5 * time.Minute},
		{"tiny pool keeps one idle conn", config.DatabaseConfig{PoolSize: 2}, 2, 1, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Host, tt.cfg.Port, tt.cfg.User, tt.cfg.Name = "localhost", 5432, "u", "d"
			pc, err := pgxpool.ParseConfig(tt.cfg.DSN())
			require.NoError(t, err)

			tune(pc, &tt.cfg)
			assert.Equal(t, tt.wantMax, pc.MaxConns)
			assert.Equal(t, tt.wantMin, pc.MinConns)
			assert.Equal(t, tt.wantLifetime, pc.MaxConnLifetime)
			assert.Equal(t, defaultConnectTimeout, pc.ConnConfig.ConnectTimeout)
			assert.Equal(t, healthCheckPeriod, pc.HealthCheckPeriod)
		})
	}
}
