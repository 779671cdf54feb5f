package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config 是整個模組的部署設定，由宿主應用在啟動時載入後注入
type Config struct {
	PostgresDSN   string `envconfig:"POSTGRES_DSN" default:"postgres://localhost:5432/catalog"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	NatsURL       string `envconfig:"NATS_URL" default:"nats://localhost:4222"`

	// FixedStockNumber 是測試環境用的庫存固定值：設定後所有庫存異動都會被略過，
	// 查詢一律回傳這個值。正式環境不可設定。
	FixedStockNumber *int64 `envconfig:"FIXED_PRODUCT_STOCK_NUMBER"`

	// LockWaitTimeout 是等待單一 SKU 庫存鎖的最長時間
	LockWaitTimeout time.Duration `envconfig:"STOCK_LOCK_WAIT_TIMEOUT" default:"5s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
