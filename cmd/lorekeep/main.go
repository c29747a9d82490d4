// Lorekeep - TTRPG session chat-log compression.
// Turns raw session logs into compact archives with statistics and a
// search index.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/pkg/config"
	"github.com/lorekeep/lorekeep/pkg/storage"
	"github.com/lorekeep/lorekeep/pkg/telemetry"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

// CLI flags
var (
	sessionID       string
	backendFlag     string
	storageDir      string
	outputFile      string
	formatFlag      string
	timeoutFlag     time.Duration
	playersFlag     []string
	activeCombat    bool
	noCombat        bool
	preserveItems   bool
	strictIngest    bool
	verbose         bool
	highlightsOnly  bool
	highlightsLimit int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lorekeep",
	Short: "Lorekeep - Compress TTRPG session logs into archives",
	Long: `Lorekeep compresses tabletop RPG session chat logs into compact archives.

Dice rolls are analyzed and kept recreatable, combat encounters collapse into
single summary entries, and every archive carries session statistics plus a
search index.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Archive backend (document, flatfile, redis, s3)")
	rootCmd.PersistentFlags().StringVar(&storageDir, "storage-dir", "", "Archive directory for file backends")

	compressCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session identifier (required)")
	compressCmd.Flags().DurationVar(&timeoutFlag, "combat-timeout", 0, "Combat inactivity timeout (default 5m)")
	compressCmd.Flags().StringArrayVar(&playersFlag, "player", nil, "Player character name (repeatable)")
	compressCmd.Flags().BoolVar(&activeCombat, "active-combat", false, "Treat the batch as starting mid-combat")
	compressCmd.Flags().BoolVar(&noCombat, "no-combat", false, "Disable combat encounter compression")
	compressCmd.Flags().BoolVar(&preserveItems, "preserve-items", false, "Promote item transfers to key events")
	compressCmd.Flags().BoolVar(&strictIngest, "strict", false, "Abort on malformed log lines instead of skipping")
	compressCmd.MarkFlagRequired("session")

	statsCmd.Flags().BoolVar(&highlightsOnly, "highlights", false, "Show only the highlight list")
	statsCmd.Flags().IntVar(&highlightsLimit, "limit", 20, "Maximum highlights to show")

	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (required)")
	exportCmd.Flags().StringVarP(&formatFlag, "format", "f", "parquet", "Export format (parquet, duckdb, xlsx)")
	exportCmd.MarkFlagRequired("output")

	watchCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session identifier (required)")
	watchCmd.Flags().DurationVar(&timeoutFlag, "combat-timeout", 0, "Combat inactivity timeout (default 5m)")
	watchCmd.Flags().StringArrayVar(&playersFlag, "player", nil, "Player character name (repeatable)")
	watchCmd.MarkFlagRequired("session")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
}

// openBackend builds the archive backend from config plus flag overrides.
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	backend := cfg.Storage.Backend
	if backendFlag != "" {
		backend = backendFlag
	}
	dir := cfg.Storage.Dir
	if storageDir != "" {
		dir = storageDir
	}

	switch backend {
	case "", "document":
		return storage.NewDocumentBackend(dir)
	case "flatfile":
		return storage.NewFlatFileBackend(dir)
	case "redis":
		rc := storage.DefaultRedisConfig(cfg.Storage.Redis.Address)
		rc.Password = cfg.Storage.Redis.Password
		rc.Database = cfg.Storage.Redis.Database
		if cfg.Storage.Redis.Prefix != "" {
			rc.Prefix = cfg.Storage.Redis.Prefix
		}
		rc.TTL = cfg.Storage.Redis.TTL
		return storage.NewRedisBackend(rc)
	case "s3":
		sc := storage.DefaultS3Config(cfg.Storage.S3.Bucket)
		if cfg.Storage.S3.Prefix != "" {
			sc.Prefix = cfg.Storage.S3.Prefix
		}
		sc.Region = cfg.Storage.S3.Region
		sc.Endpoint = cfg.Storage.S3.Endpoint
		sc.AccessKeyID = cfg.Storage.S3.AccessKeyID
		sc.SecretAccessKey = cfg.Storage.S3.SecretAccessKey
		sc.UsePathStyle = cfg.Storage.S3.UsePathStyle
		return storage.NewS3Backend(ctx, sc)
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
}

// initTelemetry starts OTLP tracing when enabled, returning a shutdown hook.
func initTelemetry(cfg *config.Config) func(context.Context) error {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }
	}

	otlpCfg := telemetry.DefaultOTLPConfig("lorekeep")
	otlpCfg.ServiceVersion = version
	if cfg.Telemetry.Endpoint != "" {
		otlpCfg.Endpoint = cfg.Telemetry.Endpoint
	}

	shutdown, err := telemetry.InitOTLP(otlpCfg)
	if err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		}
		return func(context.Context) error { return nil }
	}
	return shutdown
}
