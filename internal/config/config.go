package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Bot      BotConfig
	Store    StoreConfig
	Database DatabaseConfig
	Mail     MailConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type BotConfig struct {
	Token      string
	WebhookURL string
	UpdateMode string // "auto", "polling", "webhook"
	OwnerID    int64
	Admins     string // comma-separated extra admin chat IDs

	// CodeCoolDown is the minimum gap between two sign-in-code requests
	// for the same (user, account) pair.
	CodeCoolDown time.Duration
}

type StoreConfig struct {
	Driver       string // "firebase" or "mysql"
	FirebaseURL  string
	FirebaseAuth string
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type MailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Query        string
	Window       time.Duration
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("BOT_UPDATE_MODE", "auto")
	viper.SetDefault("CODE_COOL_DOWN", "10s")
	viper.SetDefault("STORE_DRIVER", "firebase")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("MAIL_QUERY", "from:account.netflix.com subject:(sign-in OR code)")
	viper.SetDefault("MAIL_WINDOW", "15m")

	coolDown, err := time.ParseDuration(viper.GetString("CODE_COOL_DOWN"))
	if err != nil {
		coolDown = 10 * time.Second
	}
	mailWindow, err := time.ParseDuration(viper.GetString("MAIL_WINDOW"))
	if err != nil {
		mailWindow = 15 * time.Minute
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Bot: BotConfig{
			Token:        viper.GetString("BOT_TOKEN"),
			WebhookURL:   viper.GetString("BOT_WEBHOOK_URL"),
			UpdateMode:   viper.GetString("BOT_UPDATE_MODE"),
			OwnerID:      viper.GetInt64("BOT_OWNER_ID"),
			Admins:       viper.GetString("BOT_ADMIN_IDS"),
			CodeCoolDown: coolDown,
		},
		Store: StoreConfig{
			Driver:       viper.GetString("STORE_DRIVER"),
			FirebaseURL:  viper.GetString("FIREBASE_DATABASE_URL"),
			FirebaseAuth: viper.GetString("FIREBASE_AUTH"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Mail: MailConfig{
			ClientID:     viper.GetString("GMAIL_CLIENT_ID"),
			ClientSecret: viper.GetString("GMAIL_CLIENT_SECRET"),
			RefreshToken: viper.GetString("GMAIL_REFRESH_TOKEN"),
			Query:        viper.GetString("MAIL_QUERY"),
			Window:       mailWindow,
		},
	}

	if cfg.Bot.Token == "" {
		log.Println("WARNING: BOT_TOKEN is not set")
	}
	if cfg.Bot.OwnerID == 0 {
		log.Println("WARNING: BOT_OWNER_ID is not set")
	}

	return cfg, nil
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
