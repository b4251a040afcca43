package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// envFiles lists dotenv files loaded before the environment is read.
// Variables already present in the process environment win.
var envFiles = []string{".env"}

// parseEnv overlays SEALCHAT_* environment variables. Malformed numeric,
// boolean or duration values panic, like malformed flags do.
func parseEnv(config *Config) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(fmt.Errorf("load %s: %w", f, err))
		}
	}

	envString("SEALCHAT_ADDR", &config.EndpointAddrHTTP)
	envString("SEALCHAT_DATABASE_DSN", &config.DatabaseDSN)
	envString("SEALCHAT_SECRET_KEY", &config.SecretKey)
	envString("SEALCHAT_ENCRYPTION_KEY", &config.EncryptionKey)
	envDuration("SEALCHAT_MESSAGE_TTL", &config.MessageTTL)
	envDuration("SEALCHAT_ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	envDuration("SEALCHAT_REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	envString("SEALCHAT_S3_ROOT_USER", &config.S3RootUser)
	envString("SEALCHAT_S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("SEALCHAT_S3_BUCKET", &config.S3Bucket)
	envString("SEALCHAT_S3_REGION", &config.S3Region)
	envString("SEALCHAT_S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envString("SEALCHAT_BLOB_BACKEND", &config.BlobBackend)
	envString("SEALCHAT_REDIS_ADDR", &config.RedisAddr)
	envInt("SEALCHAT_RATE_LIMIT_MESSAGES", &config.RateLimitMessages)
	envDuration("SEALCHAT_RATE_LIMIT_WINDOW", &config.RateLimitWindow)
	envInt("SEALCHAT_AUTH_RATE_LIMIT", &config.AuthRateLimit)
	envDuration("SEALCHAT_AUTH_RATE_LIMIT_WINDOW", &config.AuthRateLimitWindow)
	envInt("SEALCHAT_MAX_MESSAGE_LENGTH", &config.MaxMessageLength)
	if v, ok := os.LookupEnv("SEALCHAT_MAX_ATTACHMENT_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(fmt.Errorf("SEALCHAT_MAX_ATTACHMENT_SIZE: %w", err))
		}
		config.MaxAttachmentSize = n
	}
	envBool("SEALCHAT_ALLOW_ANONYMOUS", &config.AllowAnonymous)
	if v, ok := os.LookupEnv("SEALCHAT_ALLOWED_ORIGINS"); ok {
		config.AllowedOrigins = splitList(v)
	}
	envBool("SEALCHAT_COOKIE_SECURE", &config.CookieSecure)
	envString("SEALCHAT_LOG_BACKEND", &config.LogBackend)
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v, ok := os.LookupEnv(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", name, err))
		}
		*dst = n
	}
}

func envBool(name string, dst *bool) {
	if v, ok := os.LookupEnv(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", name, err))
		}
		*dst = b
	}
}

func envDuration(name string, dst *time.Duration) {
	if v, ok := os.LookupEnv(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", name, err))
		}
		*dst = d
	}
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
