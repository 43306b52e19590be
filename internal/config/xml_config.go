// Package config provides XML-based configuration management for the dashboard.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"IoTDashboard"`

	// Local HTTP server configuration
	Server ServerConfig `xml:"Server"`

	// Upstream monitoring API configuration
	Upstream UpstreamConfig `xml:"Upstream"`

	// Realtime socket configuration
	Realtime RealtimeConfig `xml:"Realtime"`

	// Local storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// UpstreamConfig contains the upstream REST/WebSocket API settings
type UpstreamConfig struct {
	BaseURL        string `xml:"BaseURL"`
	SocketURL      string `xml:"SocketURL"`
	RequestTimeout int    `xml:"RequestTimeoutSeconds"`
}

// RealtimeConfig contains socket client and chart settings
type RealtimeConfig struct {
	MaxReconnectAttempts int `xml:"MaxReconnectAttempts"`
	ReconnectDelayMs     int `xml:"ReconnectDelayMs"`
	MaxChartPoints       int `xml:"MaxChartPoints"`
	RecentMeasurements   int `xml:"RecentMeasurements"`
	WatchTimeoutMinutes  int `xml:"WatchTimeoutMinutes"`
	CleanupIntervalMin   int `xml:"CleanupIntervalMinutes"`
}

// StorageConfig contains local persistence settings
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	HistoryDatabase   string `xml:"HistoryDatabase"`
	SnapshotFile      string `xml:"SnapshotFile"`
	PreferenceFile    string `xml:"PreferenceFile"`
	LocaleDirectory   string `xml:"LocaleDirectory"`
	EnablePersistence bool   `xml:"EnablePersistence"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	EnforceRoleChecks bool `xml:"EnforceRoleChecks"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
	EnableCompression    bool   `xml:"EnableCompression"`
	CompressionLevel     int    `xml:"CompressionLevel"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2M",
		},
		Upstream: UpstreamConfig{
			BaseURL:        "http://localhost:8000/api",
			SocketURL:      "ws://localhost:8000",
			RequestTimeout: 30,
		},
		Realtime: RealtimeConfig{
			MaxReconnectAttempts: 5,
			ReconnectDelayMs:     3000,
			MaxChartPoints:       100,
			RecentMeasurements:   10,
			WatchTimeoutMinutes:  30,
			CleanupIntervalMin:   5,
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			HistoryDatabase:   "./data/history.duckdb",
			SnapshotFile:      "./data/snapshot.msgpack",
			PreferenceFile:    "./data/preferences.conf",
			LocaleDirectory:   "./locales",
			EnablePersistence: true,
		},
		Security: SecurityConfig{
			// Role enforcement is paused upstream; keep off until the
			// authorization owner decides.
			EnforceRoleChecks: false,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        4,
			DuckDBMemoryLimit:    "512MB",
			EnableCompression:    true,
			CompressionLevel:     5,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- IoT Dashboard Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	// Upstream overrides for container deployments
	if base := os.Getenv("UPSTREAM_API_URL"); base != "" {
		c.Upstream.BaseURL = base
	}
	if ws := os.Getenv("UPSTREAM_WS_URL"); ws != "" {
		c.Upstream.SocketURL = ws
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.HistoryDatabase) {
		c.Storage.HistoryDatabase = filepath.Join(configDir, c.Storage.HistoryDatabase)
	}
	if !filepath.IsAbs(c.Storage.SnapshotFile) {
		c.Storage.SnapshotFile = filepath.Join(configDir, c.Storage.SnapshotFile)
	}
	if !filepath.IsAbs(c.Storage.PreferenceFile) {
		c.Storage.PreferenceFile = filepath.Join(configDir, c.Storage.PreferenceFile)
	}
	if !filepath.IsAbs(c.Storage.LocaleDirectory) {
		c.Storage.LocaleDirectory = filepath.Join(configDir, c.Storage.LocaleDirectory)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// CleanupInterval returns the idle-session sweep interval. Hand-edited
// configs may carry a zero or negative value; the shipped default applies
// as a floor so the ticker is always valid.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Realtime.CleanupIntervalMin <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Realtime.CleanupIntervalMin) * time.Minute
}

// WatchTimeout returns the idle-session max age, floored the same way.
func (c *AppConfig) WatchTimeout() time.Duration {
	if c.Realtime.WatchTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Realtime.WatchTimeoutMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		filepath.Dir(c.Storage.HistoryDatabase),
		filepath.Dir(c.Storage.SnapshotFile),
		filepath.Dir(c.Storage.PreferenceFile),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
