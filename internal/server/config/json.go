package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/sealchat/internal/flagx"
	"github.com/dmitrijs2005/sealchat/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling. Durations use
// timex.Duration so both "10s" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	EncryptionKey                string         `json:"encryption_key"`
	MessageTTL                   timex.Duration `json:"message_ttl"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	BlobBackend                  string         `json:"blob_backend"`
	RedisAddr                    string         `json:"redis_addr"`
	RateLimitMessages            int            `json:"rate_limit_messages"`
	RateLimitWindow              timex.Duration `json:"rate_limit_window"`
	AuthRateLimit                int            `json:"auth_rate_limit"`
	AuthRateLimitWindow          timex.Duration `json:"auth_rate_limit_window"`
	MaxMessageLength             int            `json:"max_message_length"`
	MaxAttachmentSize            int64          `json:"max_attachment_size"`
	AllowAnonymous               bool           `json:"allow_anonymous"`
	AllowedOrigins               []string       `json:"allowed_origins"`
	CookieSecure                 bool           `json:"cookie_secure"`
	LogBackend                   string         `json:"log_backend"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrHTTP:             c.EndpointAddrHTTP,
		DatabaseDSN:                  c.DatabaseDSN,
		SecretKey:                    c.SecretKey,
		EncryptionKey:                c.EncryptionKey,
		MessageTTL:                   timex.Duration{Duration: c.MessageTTL},
		AccessTokenValidityDuration:  timex.Duration{Duration: c.AccessTokenValidityDuration},
		RefreshTokenValidityDuration: timex.Duration{Duration: c.RefreshTokenValidityDuration},
		S3RootUser:                   c.S3RootUser,
		S3RootPassword:               c.S3RootPassword,
		S3Bucket:                     c.S3Bucket,
		S3Region:                     c.S3Region,
		S3BaseEndpoint:               c.S3BaseEndpoint,
		BlobBackend:                  c.BlobBackend,
		RedisAddr:                    c.RedisAddr,
		RateLimitMessages:            c.RateLimitMessages,
		RateLimitWindow:              timex.Duration{Duration: c.RateLimitWindow},
		AuthRateLimit:                c.AuthRateLimit,
		AuthRateLimitWindow:          timex.Duration{Duration: c.AuthRateLimitWindow},
		MaxMessageLength:             c.MaxMessageLength,
		MaxAttachmentSize:            c.MaxAttachmentSize,
		AllowAnonymous:               c.AllowAnonymous,
		AllowedOrigins:               c.AllowedOrigins,
		CookieSecure:                 c.CookieSecure,
		LogBackend:                   c.LogBackend,
	}
}

// parseJson overlays values from the JSON file named by -c/-config (or
// $SEALCHAT_CONFIG). Keys missing from the file keep their current value.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.EncryptionKey = c.EncryptionKey
	config.MessageTTL = c.MessageTTL.Duration
	config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.BlobBackend = c.BlobBackend
	config.RedisAddr = c.RedisAddr
	config.RateLimitMessages = c.RateLimitMessages
	config.RateLimitWindow = c.RateLimitWindow.Duration
	config.AuthRateLimit = c.AuthRateLimit
	config.AuthRateLimitWindow = c.AuthRateLimitWindow.Duration
	config.MaxMessageLength = c.MaxMessageLength
	config.MaxAttachmentSize = c.MaxAttachmentSize
	config.AllowAnonymous = c.AllowAnonymous
	config.AllowedOrigins = c.AllowedOrigins
	config.CookieSecure = c.CookieSecure
	config.LogBackend = c.LogBackend
}
