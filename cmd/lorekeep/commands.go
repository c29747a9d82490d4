package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/combat"
	"github.com/lorekeep/lorekeep/pkg/compress"
	"github.com/lorekeep/lorekeep/pkg/config"
	"github.com/lorekeep/lorekeep/pkg/errors"
	"github.com/lorekeep/lorekeep/pkg/export"
	"github.com/lorekeep/lorekeep/pkg/ingest"
	"github.com/lorekeep/lorekeep/pkg/session"
	"github.com/lorekeep/lorekeep/pkg/storage"
	"github.com/lorekeep/lorekeep/pkg/telemetry"
	"github.com/lorekeep/lorekeep/pkg/tui"
	"github.com/lorekeep/lorekeep/pkg/watch"
)

var passGuard = session.NewGuard()

// beginPass claims the session's pass slot. A contended claim is not an
// error: the trigger is logged and skipped, the running pass keeps going.
func beginPass(id string) bool {
	if !passGuard.TryBegin(id) {
		fmt.Fprintf(os.Stderr, "pass already in flight for session %s, skipping\n", id)
		return false
	}
	return true
}

var compressCmd = &cobra.Command{
	Use:   "compress <log.jsonl>",
	Short: "Run one compression pass over a session log",
	Long: `Compress a JSONL session log into the session's archive.

The first pass for a session creates its archive; later passes append to it.
Re-feeding already consumed records is a no-op.

Examples:
  lorekeep compress -s session-12 logs/session-12.jsonl
  lorekeep compress -s session-12 --player Valeria --player Brom logs/session-12.jsonl
  lorekeep compress -s oneshot --combat-timeout 10m --backend redis log.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runCompress,
}

var statsCmd = &cobra.Command{
	Use:   "stats <archive-id>",
	Short: "Show an archive's statistics and highlights",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var searchCmd = &cobra.Command{
	Use:   "search <archive-id> <term>",
	Short: "Search an archive's index",
	Long: `Search archive entries by keyword, actor, scene, or category.

Examples:
  lorekeep search 7c2f41 goblin
  lorekeep search 7c2f41 healing`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

var exportCmd = &cobra.Command{
	Use:   "export <archive-id>",
	Short: "Export an archive to Parquet, DuckDB, or XLSX",
	Long: `Export archive entries for analysis.

Examples:
  lorekeep export 7c2f41 -o session.parquet
  lorekeep export 7c2f41 -o session.db --format duckdb
  lorekeep export 7c2f41 -o report.xlsx --format xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var watchCmd = &cobra.Command{
	Use:   "watch <log.jsonl>",
	Short: "Watch a live session log and compress incrementally",
	Long: `Watch a growing session log and trigger compression passes when enough
new messages accumulate or the table goes quiet.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <archive-id>",
	Short: "Delete an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored archives",
	RunE:  runList,
}

func runCompress(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	ctx, cancel := signalContext()
	defer cancel()

	if verbose {
		tui.PrintHeader(version)
	}

	shutdown := initTelemetry(cfg)
	defer shutdown(context.Background())

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	res, err := ingest.ReadFile(ctx, args[0], ingest.Options{
		Strict:       strictIngest,
		ShowProgress: verbose,
	})
	if err != nil {
		return err
	}
	if verbose && res.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "skipped %d malformed lines\n", res.Skipped)
	}

	tracker, err := session.NewTracker(cfg.Session.Dir)
	if err != nil {
		return err
	}
	sc, err := tracker.Load(sessionID)
	if err != nil {
		return err
	}

	if !beginPass(sessionID) {
		return nil
	}
	defer passGuard.End(sessionID)

	start := time.Now()
	a, pass, err := runPass(ctx, cfg, backend, tracker, &sc, res.Records)
	if err != nil {
		return err
	}

	tui.PrintPassSummary(a, pass, time.Since(start))
	return nil
}

// runPass executes one pipeline run and persists the result, creating the
// session's archive on first use.
func runPass(
	ctx context.Context,
	cfg *config.Config,
	backend storage.Backend,
	tracker *session.Tracker,
	sc *session.Context,
	records []model.EventRecord,
) (*archive.Archive, *archive.Pass, error) {
	pipeline := compress.New(buildRoster(cfg))
	timeout := cfg.Combat.InactivityTimeout
	if timeoutFlag > 0 {
		timeout = timeoutFlag
	}
	if timeout > 0 {
		pipeline.SetCombatTimeout(timeout)
	}
	pipeline.SetWorkers(cfg.Pipeline.Workers)

	opts := compress.Options{
		ActiveCombat:            activeCombat,
		PreserveItemTransfers:   preserveItems || cfg.Pipeline.PreserveItemTransfers,
		EnableCombatCompression: !noCombat && cfg.Pipeline.EnableCombatCompression,
	}

	pass, err := pipeline.Run(ctx, records, opts)
	if err != nil {
		return nil, nil, err
	}

	if sc.Start == 0 && len(records) > 0 {
		sc.Start = records[0].Timestamp
	}

	pctx, span := telemetry.StartSpan(ctx, "storage.persist")
	var a *archive.Archive
	if sc.ArchiveID == "" {
		a, err = backend.Create(pctx, sc.ID, sc.Start, pass)
		if err != nil {
			err = errors.Wrap(err, errors.CodeStorageCreate, "failed to create archive")
		}
	} else {
		a, err = backend.Append(pctx, sc.ArchiveID, pass)
		if err != nil {
			err = errors.Wrap(err, errors.CodeStorageAppend, "failed to append to archive")
		}
	}
	if err != nil {
		telemetry.RecordError(pctx, err)
		span.End()
		// The computed result must survive a storage outage. The session
		// tracker stays untouched so a retry re-feeds the same batch; the
		// consumed-id set keeps that retry idempotent.
		if path, werr := rescuePass(cfg.Session.Dir, sc.ID, pass); werr != nil {
			fmt.Fprintf(os.Stderr, "could not write rescue copy: %v\n", werr)
		} else {
			fmt.Fprintf(os.Stderr, "pass result saved to %s; re-run compress once storage recovers\n", path)
		}
		return nil, nil, err
	}
	span.End()

	sc.ArchiveID = a.ID
	sc.LastPass = time.Now().UnixMilli()
	if err := tracker.Save(*sc); err != nil {
		return nil, nil, err
	}
	return a, pass, nil
}

// rescuePass dumps a pass that storage rejected to a JSON sidecar under
// the session directory.
func rescuePass(dir, sessionID string, pass *archive.Pass) (string, error) {
	data, err := json.MarshalIndent(pass, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-pass-%d.json", sessionID, time.Now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func buildRoster(cfg *config.Config) combat.Roster {
	roster := combat.Roster{}
	for _, name := range cfg.Combat.Players {
		roster[name] = true
	}
	for _, name := range playersFlag {
		roster[name] = true
	}
	return roster
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	ctx, cancel := signalContext()
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	a, err := readArchive(ctx, backend, args[0])
	if err != nil {
		return err
	}

	if !highlightsOnly {
		tui.PrintStatistics(a)
	}
	tui.PrintHighlights(a, highlightsLimit)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	ctx, cancel := signalContext()
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	a, err := readArchive(ctx, backend, args[0])
	if err != nil {
		return err
	}

	term := strings.ToLower(args[1])

	// Category lookup hits the index directly; otherwise scan display text.
	byID := make(map[string]bool)
	for _, id := range a.Index.ByType[term] {
		byID[id] = true
	}

	var matches []archive.Entry
	for _, e := range a.Entries {
		if byID[e.ID] || strings.Contains(strings.ToLower(e.DisplayText), term) {
			matches = append(matches, e)
		}
	}

	tui.PrintSearchResults(args[1], matches)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	ctx, cancel := signalContext()
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	a, err := readArchive(ctx, backend, args[0])
	if err != nil {
		return err
	}

	switch formatFlag {
	case "parquet":
		err = export.WriteParquet(ctx, a, outputFile, export.Options{
			Compression:  cfg.Export.Compression,
			RowGroupSize: cfg.Export.RowGroupSize,
		})
	case "duckdb":
		err = export.WriteDuckDB(ctx, a, outputFile)
	case "xlsx":
		err = export.WriteXLSX(a, outputFile)
	default:
		return fmt.Errorf("unknown export format: %s", formatFlag)
	}
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Exported %d entries to %s\n", len(a.Entries), outputFile)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	ctx, cancel := signalContext()
	defer cancel()

	shutdown := initTelemetry(cfg)
	defer shutdown(context.Background())

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	tracker, err := session.NewTracker(cfg.Session.Dir)
	if err != nil {
		return err
	}
	sc, err := tracker.Load(sessionID)
	if err != nil {
		return err
	}

	watcher, err := watch.NewWatcher(args[0], watch.Config{
		Debounce:         cfg.Watch.Debounce,
		MessageThreshold: cfg.Watch.MessageThreshold,
		IdleFlush:        cfg.Watch.IdleFlush,
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	// processed counts records already consumed by a pass in this run.
	// The consumed-id set in the archive makes re-feeding safe either way.
	processed := 0

	watcher.OnChange = func(path string) (int, error) {
		res, err := ingest.ReadFile(ctx, path, ingest.Options{})
		if err != nil {
			return 0, err
		}
		pending := len(res.Records) - processed
		if pending < 0 {
			// Log was truncated or rewritten; start over.
			processed = 0
			pending = len(res.Records)
		}
		return pending, nil
	}

	watcher.OnTrigger = func(path, reason string) error {
		if !beginPass(sessionID) {
			return nil
		}
		defer passGuard.End(sessionID)

		res, err := ingest.ReadFile(ctx, path, ingest.Options{})
		if err != nil {
			return err
		}
		if processed > len(res.Records) {
			processed = 0
		}
		batch := res.Records[processed:]
		if len(batch) == 0 {
			return nil
		}

		start := time.Now()
		a, pass, err := runPass(ctx, cfg, backend, tracker, &sc, batch)
		if err != nil {
			return err
		}
		processed = len(res.Records)

		if verbose {
			fmt.Printf("pass triggered (%s)\n", reason)
		}
		tui.PrintPassSummary(a, pass, time.Since(start))
		return nil
	}

	watcher.OnError = func(path string, err error) {
		tui.PrintError(err)
	}

	fmt.Printf("Watching %s (threshold %d messages, idle flush %s)\n",
		args[0], cfg.Watch.MessageThreshold, cfg.Watch.IdleFlush)

	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	ctx, cancel := signalContext()
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	if err := backend.Delete(ctx, args[0]); err != nil {
		return errors.Wrap(err, errors.CodeStorageDelete, "failed to delete archive")
	}
	fmt.Printf("Deleted archive %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	ctx, cancel := signalContext()
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	ids, err := backend.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No archives stored.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func readArchive(ctx context.Context, backend storage.Backend, id string) (*archive.Archive, error) {
	a, err := backend.Read(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound || os.IsNotExist(err) {
			return nil, errors.New(errors.CodeArchiveNotFound, "archive not found: "+id)
		}
		return nil, errors.Wrap(err, errors.CodeStorageRead, "failed to read archive")
	}
	return a, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
		cancel()
	}()

	return ctx, cancel
}
