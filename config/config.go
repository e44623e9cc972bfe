// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	// DefaultIMDSEndpoint はAzure Instance Metadata Serviceのリンクローカルアドレス。
	DefaultIMDSEndpoint = "http://169.254.169.254"

	// DefaultBlobEndpointFormat は %s にストレージアカウント名が入る Blob エンドポイントの書式。
	DefaultBlobEndpointFormat = "https://%s.blob.core.windows.net"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	// Azure
	IMDSEndpoint       string
	BlobEndpointFormat string
	HTTPTimeout        time.Duration

	// OpenTelemetry
	OtelEnabled      bool
	OtelEndpoint     string
	OtelInsecure     bool
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		IMDSEndpoint:       getEnv("AZURE_IMDS_ENDPOINT", DefaultIMDSEndpoint),
		BlobEndpointFormat: getEnv("AZURE_BLOB_ENDPOINT_FORMAT", DefaultBlobEndpointFormat),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelInsecure:       getEnvBool("OTEL_INSECURE", false),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "sas-token-service"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, err := time.ParseDuration(os.Getenv(key))
	if err != nil || val <= 0 {
		return defaultVal
	}
	return val
}
