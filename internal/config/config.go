package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	postgres "github.com/dittorahmat/amal-kita/internal/storage/postgres"
)

// Config aggregates runtime configuration grouped by concern.
type Config struct {
	ServiceName string
	HTTP        HTTPConfig
	Kafka       KafkaConfig
	Database    postgres.DatabaseConfig
	Odoo        OdooConfig
	Invoice     InvoiceConfig
}

type HTTPConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers        []string
	DonationsTopic string
	DonationsGroup string
}

// OdooConfig carries the XML-RPC endpoint and credentials. All four fields
// are required; when any is missing the integration is disabled upstream
// rather than half-configured.
type OdooConfig struct {
	BaseURL  string
	Username string
	Password string
	Database string
}

func (c OdooConfig) Enabled() bool {
	return c.BaseURL != "" && c.Username != "" && c.Password != "" && c.Database != ""
}

type InvoiceConfig struct {
	NumberPrefix string
}

// Load reads configuration from environment variables, applying sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "amal-kita"),
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_LISTEN_ADDR", ":3000"),
		},
		Kafka: KafkaConfig{
			Brokers:        splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
			DonationsTopic: getEnv("KAFKA_DONATIONS_TOPIC", "donations.v1"),
			DonationsGroup: getEnv("KAFKA_DONATIONS_GROUP_ID", "invoice-sync-workers"),
		},
		Odoo: OdooConfig{
			BaseURL:  os.Getenv("ODOO_BASE_URL"),
			Username: os.Getenv("ODOO_USERNAME"),
			Password: os.Getenv("ODOO_PASSWORD"),
			Database: os.Getenv("ODOO_DATABASE"),
		},
		Invoice: InvoiceConfig{
			NumberPrefix: getEnv("INVOICE_NUMBER_PREFIX", "ZIS"),
		},
	}

	portStr := getEnv("AMALKITA_DB_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Config{}, fmt.Errorf("parse AMALKITA_DB_PORT: %w", err)
	}

	cfg.Database = postgres.DatabaseConfig{
		Host:     getEnv("AMALKITA_DB_HOST", "localhost"),
		Port:     port,
		Database: getEnv("AMALKITA_DB_NAME", "amalkita"),
		User:     getEnv("AMALKITA_DB_USER", "amalkita"),
		Password: getEnv("AMALKITA_DB_PASSWORD", ""),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
