package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/repository"
)

type Config struct {
	DatabaseURL string        `env:"DATABASE_URL,required"`
	JWTSecret   string        `env:"JWT_SECRET,required"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"12h"`
	Port        int           `env:"PORT" envDefault:"8080"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string        `env:"LOG_FORMAT"`
	AppEnv      string        `env:"APP_ENV" envDefault:"production"`
	Version     string        `env:"APP_VERSION" envDefault:"dev"`

	// CallbackBaseURL is the public origin providers post webhooks to.
	CallbackBaseURL string `env:"CALLBACK_BASE_URL,required"`
	FrontURL        string `env:"FRONT_URL" envDefault:"http://localhost:3000"`

	OnchainpayURL   string        `env:"ONCHAINPAY_URL" envDefault:"https://ocp.onchainpay.io/api-gateway/"`
	PlisioURL       string        `env:"PLISIO_URL" envDefault:"https://plisio.net/api/v1/"`
	PrivatBankURL   string        `env:"PRIVATBANK_URL" envDefault:"https://api.privatbank.ua/p24api/pubinfo?exchange&coursid=5"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`

	PayoutReserveRatio decimal.Decimal `env:"PAYOUT_RESERVE_RATIO" envDefault:"0.5"`

	RedisURL     string        `env:"REDIS_URL"`
	RateCacheTTL time.Duration `env:"RATE_CACHE_TTL" envDefault:"30m"`
	AMQPURL      string        `env:"AMQP_URL"`
	AMQPExchange string        `env:"AMQP_EXCHANGE" envDefault:"settlement_events"`

	RatesSchedule            string        `env:"RATES_SCHEDULE" envDefault:"*/10 * * * *"`
	BalancesSchedule         string        `env:"BALANCES_SCHEDULE" envDefault:"*/15 * * * *"`
	SweepSchedule            string        `env:"SWEEP_SCHEDULE" envDefault:"0 * * * *"`
	WithdrawCheckSchedule    string        `env:"WITHDRAW_CHECK_SCHEDULE" envDefault:"*/5 * * * *"`
	IdempotencyCleanSchedule string        `env:"IDEMPOTENCY_CLEAN_SCHEDULE" envDefault:"30 3 * * *"`
	SchedulerEnabled         bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	JobTimeout               time.Duration `env:"JOB_TIMEOUT" envDefault:"5m"`
	WithdrawCheckBatch       int           `env:"WITHDRAW_CHECK_BATCH" envDefault:"50"`

	WebhookReplayInterval time.Duration `env:"WEBHOOK_REPLAY_INTERVAL" envDefault:"30s"`
	WebhookReplayMinAge   time.Duration `env:"WEBHOOK_REPLAY_MIN_AGE" envDefault:"1m"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBConnectAttempts  int `env:"DB_CONNECT_ATTEMPTS" envDefault:"30"`
}

func (c *Config) Pool() repository.PoolConfig {
	return repository.PoolConfig{
		MaxOpenConns:     c.DBMaxOpenConns,
		MaxIdleConns:     c.DBMaxIdleConns,
		ConnMaxLifetimeS: c.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: c.DBConnMaxIdleTimeS,
		ConnectAttempts:  c.DBConnectAttempts,
	}
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
