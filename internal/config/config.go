package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	SigningKey  string        `mapstructure:"signing_key"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	LoginExpiry time.Duration `mapstructure:"login_expiry"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type OTPConfig struct {
	CodeTTL        time.Duration `mapstructure:"code_ttl"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
}

type AdminSetupConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	OTP        OTPConfig        `mapstructure:"otp"`
	AdminSetup AdminSetupConfig `mapstructure:"admin_setup"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// LoadConfig reads config.yaml and environment variables into Config.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config.yaml")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("jwt.token_expiry", time.Hour)
	v.SetDefault("jwt.login_expiry", 24*time.Hour)
	v.SetDefault("otp.code_ttl", 10*time.Minute)
	v.SetDefault("otp.resend_cooldown", time.Minute)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}
