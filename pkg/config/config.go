// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Lorekeep configuration.
type Config struct {
	Version int `yaml:"version"`

	Combat    CombatConfig    `yaml:"combat"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Watch     WatchConfig     `yaml:"watch"`
	Export    ExportConfig    `yaml:"export"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CombatConfig controls encounter detection.
type CombatConfig struct {
	// InactivityTimeout closes an open encounter when event timestamps
	// go quiet for this long.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`

	// Players lists character names treated as player characters when
	// splitting damage dealt from damage taken.
	Players []string `yaml:"players"`
}

// PipelineConfig controls compression behavior.
type PipelineConfig struct {
	Workers                 int  `yaml:"workers"` // 0 = auto
	PreserveItemTransfers   bool `yaml:"preserve_item_transfers"`
	EnableCombatCompression bool `yaml:"enable_combat_compression"`
}

// StorageConfig selects and configures the archive backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // document | flatfile | redis | s3
	Dir     string `yaml:"dir"`

	Redis RedisStorageConfig `yaml:"redis"`
	S3    S3StorageConfig    `yaml:"s3"`
}

// RedisStorageConfig for the Redis backend.
type RedisStorageConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// S3StorageConfig for the S3 backend.
type S3StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// SessionConfig for session state tracking.
type SessionConfig struct {
	Dir string `yaml:"dir"`
}

// WatchConfig controls the live session watcher.
type WatchConfig struct {
	Debounce         time.Duration `yaml:"debounce"`
	MessageThreshold int           `yaml:"message_threshold"`
	IdleFlush        time.Duration `yaml:"idle_flush"`
}

// ExportConfig controls parquet and spreadsheet output.
type ExportConfig struct {
	Compression  string `yaml:"compression"` // snappy | zstd | gzip | none
	RowGroupSize int64  `yaml:"row_group_size"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	lorekeepDir := filepath.Join(homeDir, ".lorekeep")

	return &Config{
		Version: 1,
		Combat: CombatConfig{
			InactivityTimeout: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Workers:                 0, // auto
			PreserveItemTransfers:   true,
			EnableCombatCompression: true,
		},
		Storage: StorageConfig{
			Backend: "document",
			Dir:     filepath.Join(lorekeepDir, "archives"),
			Redis: RedisStorageConfig{
				Address: "localhost:6379",
				Prefix:  "lorekeep:archives:",
			},
			S3: S3StorageConfig{
				Prefix: "archives/",
			},
		},
		Session: SessionConfig{
			Dir: filepath.Join(lorekeepDir, "sessions"),
		},
		Watch: WatchConfig{
			Debounce:         2 * time.Second,
			MessageThreshold: 200,
			IdleFlush:        10 * time.Minute,
		},
		Export: ExportConfig{
			Compression:  "snappy",
			RowGroupSize: 8192,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	paths := m.getConfigPaths()
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but fail on broken ones
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	// Ensure directories exist
	m.ensureDirs()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/lorekeep/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".lorekeep", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".lorekeep.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	// Merge non-zero values
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Combat
	if src.Combat.InactivityTimeout != 0 {
		m.config.Combat.InactivityTimeout = src.Combat.InactivityTimeout
	}
	if len(src.Combat.Players) > 0 {
		m.config.Combat.Players = src.Combat.Players
	}

	// Pipeline
	if src.Pipeline.Workers != 0 {
		m.config.Pipeline.Workers = src.Pipeline.Workers
	}
	if src.Pipeline.PreserveItemTransfers {
		m.config.Pipeline.PreserveItemTransfers = true
	}
	if src.Pipeline.EnableCombatCompression {
		m.config.Pipeline.EnableCombatCompression = true
	}

	// Storage
	if src.Storage.Backend != "" {
		m.config.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Dir != "" {
		m.config.Storage.Dir = src.Storage.Dir
	}
	if src.Storage.Redis.Address != "" {
		m.config.Storage.Redis.Address = src.Storage.Redis.Address
	}
	if src.Storage.Redis.Password != "" {
		m.config.Storage.Redis.Password = src.Storage.Redis.Password
	}
	if src.Storage.Redis.Database != 0 {
		m.config.Storage.Redis.Database = src.Storage.Redis.Database
	}
	if src.Storage.Redis.Prefix != "" {
		m.config.Storage.Redis.Prefix = src.Storage.Redis.Prefix
	}
	if src.Storage.Redis.TTL != 0 {
		m.config.Storage.Redis.TTL = src.Storage.Redis.TTL
	}
	if src.Storage.S3.Bucket != "" {
		m.config.Storage.S3.Bucket = src.Storage.S3.Bucket
	}
	if src.Storage.S3.Prefix != "" {
		m.config.Storage.S3.Prefix = src.Storage.S3.Prefix
	}
	if src.Storage.S3.Region != "" {
		m.config.Storage.S3.Region = src.Storage.S3.Region
	}
	if src.Storage.S3.Endpoint != "" {
		m.config.Storage.S3.Endpoint = src.Storage.S3.Endpoint
	}
	if src.Storage.S3.AccessKeyID != "" {
		m.config.Storage.S3.AccessKeyID = src.Storage.S3.AccessKeyID
	}
	if src.Storage.S3.SecretAccessKey != "" {
		m.config.Storage.S3.SecretAccessKey = src.Storage.S3.SecretAccessKey
	}
	if src.Storage.S3.UsePathStyle {
		m.config.Storage.S3.UsePathStyle = true
	}

	// Session
	if src.Session.Dir != "" {
		m.config.Session.Dir = src.Session.Dir
	}

	// Watch
	if src.Watch.Debounce != 0 {
		m.config.Watch.Debounce = src.Watch.Debounce
	}
	if src.Watch.MessageThreshold != 0 {
		m.config.Watch.MessageThreshold = src.Watch.MessageThreshold
	}
	if src.Watch.IdleFlush != 0 {
		m.config.Watch.IdleFlush = src.Watch.IdleFlush
	}

	// Export
	if src.Export.Compression != "" {
		m.config.Export.Compression = src.Export.Compression
	}
	if src.Export.RowGroupSize != 0 {
		m.config.Export.RowGroupSize = src.Export.RowGroupSize
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	// LOREKEEP_BACKEND
	if v := os.Getenv("LOREKEEP_BACKEND"); v != "" {
		m.config.Storage.Backend = v
	}

	// LOREKEEP_STORAGE_DIR
	if v := os.Getenv("LOREKEEP_STORAGE_DIR"); v != "" {
		m.config.Storage.Dir = v
	}

	// LOREKEEP_COMBAT_TIMEOUT
	if v := os.Getenv("LOREKEEP_COMBAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			m.config.Combat.InactivityTimeout = d
		}
	}

	// LOREKEEP_REDIS_ADDR
	if v := os.Getenv("LOREKEEP_REDIS_ADDR"); v != "" {
		m.config.Storage.Redis.Address = v
	}

	// LOREKEEP_WORKERS
	if v := os.Getenv("LOREKEEP_WORKERS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			m.config.Pipeline.Workers = n
		}
	}
}

// ensureDirs creates necessary directories.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Storage.Dir,
		m.config.Session.Dir,
	}

	for _, dir := range dirs {
		os.MkdirAll(dir, 0755)
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".lorekeep")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
