package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env              string                  `env:"ENV,default=local"`
	TestMode         bool                    `env:"TEST_MODE,default=false"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	API              APIHTTPConfig           `env:",prefix=API_"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=30s"`
	DB               SQLiteConfig            `env:",prefix=DB_"`
	Chat             ChatConfig              `env:",prefix=CHAT_"`
	Telegram         TelegramConfig          `env:",prefix=TELEGRAM_"`
	YooKassa         YooKassaConfig          `env:",prefix=YOOKASSA_"`
	Provisioning     ProvisioningConfig      `env:",prefix=PROVISIONING_"`
	Pricing          PricingConfig           `env:",prefix=PRICING_"`
	Dispatch         DispatchConfig          `env:",prefix=DISPATCH_"`
	Redis            RedisConfig             `env:",prefix=REDIS_"`
	AMQP             AMQPConfig              `env:",prefix=AMQP_"`
	Workers          WorkersConfig           `env:",prefix=WORKERS_"`
}

// ChatConfig describes the Twilio-compatible messaging endpoint used for WhatsApp.
type ChatConfig struct {
	BaseURL    string        `env:"BASE_URL,default=https://api.twilio.com"`
	AccountSID string        `env:"ACCOUNT_SID"`
	AuthToken  string        `env:"AUTH_TOKEN"`
	From       string        `env:"FROM"`
	Timeout    time.Duration `env:"TIMEOUT,default=15s"`
	ChunkSize  int           `env:"CHUNK_SIZE,default=3900"`
	RateLimit  struct {
		Burst int     `env:"BURST,default=1"`
		RPS   float64 `env:"RPS,default=10.0"`
	} `env:",prefix=RATE_LIMIT_"`
}

// TelegramConfig is the operator alert channel. Alerts are disabled without a token.
type TelegramConfig struct {
	BotToken string  `env:"BOT_TOKEN"`
	AdminIDs []int64 `env:"ADMIN_IDS"`
}

type YooKassaConfig struct {
	ShopID    string `env:"SHOP_ID"`
	SecretKey string `env:"SECRET_KEY"`
	ReturnURL string `env:"RETURN_URL,default=https://example.com/payment/return"`
	Currency  string `env:"CURRENCY,default=BRL"`
}

type ProvisioningConfig struct {
	Driver       string        `env:"DRIVER,default=memory"`
	PanelURL     string        `env:"PANEL_URL,default=https://bitpanel.nl"`
	Username     string        `env:"USERNAME"`
	Password     string        `env:"PASSWORD"`
	Headless     bool          `env:"HEADLESS,default=true"`
	PlanLabel    string        `env:"PLAN_LABEL,default=Full HD + H265 + HD + SD + VOD + Adulto + LGBT"`
	PricePlan    string        `env:"PRICE_PLAN,default=Basico, R$ 30,00"`
	ArtifactsDir string        `env:"ARTIFACTS_DIR,default=./data/artifacts"`
	CallTimeout  time.Duration `env:"CALL_TIMEOUT,default=90s"`
	StepTimeout  time.Duration `env:"STEP_TIMEOUT,default=20s"`
	Workers      int           `env:"WORKERS,default=2"`
}

// PricingConfig holds defaults; values stored in the settings table take precedence.
type PricingConfig struct {
	PricePerMonth           float64 `env:"PRICE_PER_MONTH,default=30"`
	PricePerExtraConnection float64 `env:"PRICE_PER_EXTRA_CONNECTION,default=30"`
	DefaultPlanLabel        string  `env:"DEFAULT_PLAN_LABEL,default=Full HD + H265 + HD + SD + VOD + Adulto + LGBT"`
	AccessLinkURL           string  `env:"ACCESS_LINK_URL,default=https://bitplatform.vip/"`
	SupportContact          string  `env:"SUPPORT_CONTACT,default=11 96751-2034"`
}

type DispatchConfig struct {
	Shards    int `env:"SHARDS,default=8"`
	QueueSize int `env:"QUEUE_SIZE,default=64"`
}

type RedisConfig struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB,default=0"`
	LockTTL  time.Duration `env:"LOCK_TTL,default=2m"`
}

type AMQPConfig struct {
	URL   string `env:"URL"`
	Queue string `env:"QUEUE,default=iptv.events"`
}

type WorkersConfig struct {
	ResyncSchedule       string        `env:"RESYNC_SCHEDULE,default=0 4 * * *"`
	ResyncPacing         time.Duration `env:"RESYNC_PACING,default=1s"`
	PaymentCheckInterval string        `env:"PAYMENT_CHECK_INTERVAL,default=@every 30s"`
	PaymentCheckMinAge   time.Duration `env:"PAYMENT_CHECK_MIN_AGE,default=1m"`
	PaymentCheckMaxAge   time.Duration `env:"PAYMENT_CHECK_MAX_AGE,default=24h"`
	ReminderSchedule     string        `env:"REMINDER_SCHEDULE,default=0 10 * * *"`
	ReminderDays         int           `env:"REMINDER_DAYS,default=3"`
	ExpirationSchedule   string        `env:"EXPIRATION_SCHEDULE,default=@every 1h"`
	PanelCheckInterval   time.Duration `env:"PANEL_CHECK_INTERVAL,default=1m"`
}

type LoggerConfig struct {
	Level string `env:"LEVEL,default=debug"`
}

type ObservabilityHTTPConfig struct {
	Host         string        `env:"HOST,default=127.0.0.1"`
	Port         uint16        `env:"PORT,default=8383"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a ObservabilityHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type APIHTTPConfig struct {
	Host         string        `env:"HOST,default=0.0.0.0"`
	Port         uint16        `env:"PORT,default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=15s"`
}

func (a APIHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type SQLiteConfig struct {
	Path         string `env:"PATH,default=./data/iptv.db"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS,default=1"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS,default=1"`
	MaxLifetime  string `env:"MAX_LIFETIME,default=5m"`
}
