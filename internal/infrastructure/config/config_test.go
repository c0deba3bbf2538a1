package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Payment: PaymentConfig{
			TimeoutWindow:  15 * time.Minute,
			Currency:       "NGN",
			ServiceFeeRate: 0.05,
			LockTTL:        30 * time.Second,
		},
		Assignment: AssignmentConfig{
			MaxAttempts:    5,
			InitialBackoff: 30 * time.Second,
			MaxBackoff:     15 * time.Minute,
		},
		Worker: WorkerConfig{
			BatchSize:   10,
			Concurrency: 4,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidReadTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")
}

func TestConfig_Validate_InvalidWriteTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.WriteTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "write_timeout")
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_InvalidRedisPort(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Port = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis.port")
}

func TestConfig_Validate_InvalidTimeoutWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Payment.TimeoutWindow = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "payment.timeout_window")
}

func TestConfig_Validate_InvalidServiceFeeRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"negative rate", -0.1},
		{"rate of one", 1.0},
		{"rate above one", 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Payment.ServiceFeeRate = tt.rate

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "payment.service_fee_rate")
		})
	}
}

func TestConfig_Validate_InvalidCurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Payment.Currency = "NAIRA"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "payment.currency")
}

func TestConfig_Validate_InvalidAssignmentAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.Assignment.MaxAttempts = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "assignment.max_attempts")
}

func TestConfig_Validate_InvalidWorkerBatchSize(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.BatchSize = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.batch_size")
}

func TestConfig_Validate_InvalidWorkerConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.Concurrency = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.concurrency")
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "read_timeout")
	assert.Contains(t, errStr, "write_timeout")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "database.port")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "payment.timeout_window")
	assert.Contains(t, errStr, "worker.batch_size")
}

func TestServerConfig_ValidPorts(t *testing.T) {
	validPorts := []int{80, 443, 8080, 8443, 3000, 5000, 9000, 65535}

	for _, port := range validPorts {
		t.Run("port_valid", func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = port

			err := cfg.Validate()
			assert.NoError(t, err)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app_user",
		Password: "secret",
		Database: "gromart_db",
		SSLMode:  "require",
	}

	dsn := cfg.DatabaseDSN()
	assert.Contains(t, dsn, "host=db.example.com")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "user=app_user")
	assert.Contains(t, dsn, "dbname=gromart_db")
	assert.Contains(t, dsn, "sslmode=require")
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.RedisAddr())
}

func TestCORSConfig_Fields(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins:   []string{"https://example.com", "https://app.example.com"},
		AllowCredentials: true,
	}

	assert.Equal(t, []string{"https://example.com", "https://app.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.AllowCredentials)
}
