package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/taskmanager/internal/flagx"
	"github.com/dmitrijs2005/taskmanager/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations accept
// both "15m" strings and integer nanoseconds.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	ResetSecretKey               string         `json:"reset_secret_key"`
	SessionTokenValidityDuration timex.Duration `json:"session_token_validity_duration"`
	ResetTokenValidityDuration   timex.Duration `json:"reset_token_validity_duration"`
	OTPValidityDuration          timex.Duration `json:"otp_validity_duration"`
	OTPCleanupInterval           timex.Duration `json:"otp_cleanup_interval"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	RedisAddr                    string         `json:"redis_addr"`
	RateLimitFailOpen            *bool          `json:"rate_limit_fail_open"`
	SMTPHost                     string         `json:"smtp_host"`
	SMTPPort                     int            `json:"smtp_port"`
	SMTPUser                     string         `json:"smtp_user"`
	SMTPPassword                 string         `json:"smtp_password"`
	MailFrom                     string         `json:"mail_from"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	AvatarDir                    string         `json:"avatar_dir"`
	LogFormat                    string         `json:"log_format"`
	AllowedOrigins               []string       `json:"allowed_origins"`
}

// parseJson overlays values from the file named by -c/-config. Keys absent
// from the file keep their current value. An unreadable or malformed file
// panics, as there is no sensible way to continue with a half-read config.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.ResetSecretKey, c.ResetSecretKey)
	setDuration(&config.SessionTokenValidityDuration, c.SessionTokenValidityDuration.Duration)
	setDuration(&config.ResetTokenValidityDuration, c.ResetTokenValidityDuration.Duration)
	setDuration(&config.OTPValidityDuration, c.OTPValidityDuration.Duration)
	setDuration(&config.OTPCleanupInterval, c.OTPCleanupInterval.Duration)
	setInt(&config.BcryptCost, c.BcryptCost)
	setString(&config.RedisAddr, c.RedisAddr)
	if c.RateLimitFailOpen != nil {
		config.RateLimitFailOpen = *c.RateLimitFailOpen
	}
	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.AvatarDir, c.AvatarDir)
	setString(&config.LogFormat, c.LogFormat)
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
}
