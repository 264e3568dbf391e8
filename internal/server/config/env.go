package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/taskmanager/internal/flagx"
)

// EnvConfig lists the environment variables understood by the server.
type EnvConfig struct {
	HTTPAddr                     string        `env:"HTTP_ADDR"`
	DatabaseDSN                  string        `env:"DATABASE_DSN"`
	SecretKey                    string        `env:"JWT_SECRET"`
	ResetSecretKey               string        `env:"JWT_RESET_SECRET"`
	SessionTokenValidityDuration time.Duration `env:"SESSION_TOKEN_TTL"`
	ResetTokenValidityDuration   time.Duration `env:"RESET_TOKEN_TTL"`
	OTPValidityDuration          time.Duration `env:"OTP_TTL"`
	OTPCleanupInterval           time.Duration `env:"OTP_CLEANUP_INTERVAL"`
	BcryptCost                   int           `env:"BCRYPT_COST"`
	RedisAddr                    string        `env:"REDIS_ADDR"`
	RateLimitFailOpen            string        `env:"RATE_LIMIT_FAIL_OPEN"`
	SMTPHost                     string        `env:"SMTP_HOST"`
	SMTPPort                     int           `env:"SMTP_PORT"`
	SMTPUser                     string        `env:"EMAIL_USER"`
	SMTPPassword                 string        `env:"EMAIL_PASS"`
	MailFrom                     string        `env:"MAIL_FROM"`
	S3RootUser                   string        `env:"S3_ROOT_USER"`
	S3RootPassword               string        `env:"S3_ROOT_PASSWORD"`
	S3Bucket                     string        `env:"S3_BUCKET"`
	S3Region                     string        `env:"S3_REGION"`
	S3BaseEndpoint               string        `env:"S3_BASE_ENDPOINT"`
	AvatarDir                    string        `env:"AVATAR_DIR"`
	LogFormat                    string        `env:"LOG_FORMAT"`
	AllowedOrigins               []string      `env:"ALLOWED_ORIGINS" env-separator:","`
}

// parseEnv loads the dotenv file (-env-file, or ./.env when present) into the
// process environment and overlays every variable that is set.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else {
		// a missing ./.env is normal outside local development
		_ = godotenv.Load()
	}

	e := &EnvConfig{}
	if err := cleanenv.ReadEnv(e); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, e.HTTPAddr)
	setString(&config.DatabaseDSN, e.DatabaseDSN)
	setString(&config.SecretKey, e.SecretKey)
	setString(&config.ResetSecretKey, e.ResetSecretKey)
	setDuration(&config.SessionTokenValidityDuration, e.SessionTokenValidityDuration)
	setDuration(&config.ResetTokenValidityDuration, e.ResetTokenValidityDuration)
	setDuration(&config.OTPValidityDuration, e.OTPValidityDuration)
	setDuration(&config.OTPCleanupInterval, e.OTPCleanupInterval)
	setInt(&config.BcryptCost, e.BcryptCost)
	setString(&config.RedisAddr, e.RedisAddr)
	switch e.RateLimitFailOpen {
	case "true", "1":
		config.RateLimitFailOpen = true
	case "false", "0":
		config.RateLimitFailOpen = false
	}
	setString(&config.SMTPHost, e.SMTPHost)
	setInt(&config.SMTPPort, e.SMTPPort)
	setString(&config.SMTPUser, e.SMTPUser)
	setString(&config.SMTPPassword, e.SMTPPassword)
	setString(&config.MailFrom, e.MailFrom)
	setString(&config.S3RootUser, e.S3RootUser)
	setString(&config.S3RootPassword, e.S3RootPassword)
	setString(&config.S3Bucket, e.S3Bucket)
	setString(&config.S3Region, e.S3Region)
	setString(&config.S3BaseEndpoint, e.S3BaseEndpoint)
	setString(&config.AvatarDir, e.AvatarDir)
	setString(&config.LogFormat, e.LogFormat)
	if len(e.AllowedOrigins) > 0 {
		config.AllowedOrigins = e.AllowedOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// setDuration ignores non-positive values; every duration here is a period or a TTL.
func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
