// snapworld inspects, transforms, and stores world snapshot files.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/snapworld/server/internal/config"
	"github.com/snapworld/server/internal/data"
	"github.com/snapworld/server/internal/persist"
	"github.com/snapworld/server/internal/scripting"
	"github.com/snapworld/server/internal/world"
)

const usage = `Usage: snapworld <command> [args]

File commands:
  info <file>               print a summary of a snapshot file
  verify <file>             decode a snapshot and report problems
  compact <file> [out]      re-encode a snapshot in canonical form
  init <template.yaml> <out>  build a fresh snapshot from a YAML template
  run <file> <script.lua> [out]  run a Lua script against a snapshot

Database commands (need config):
  store <file> [name]       save a snapshot revision to the database
  fetch <out> [name|#id]    load the newest revision (or one by #id)
  list [name]               list stored revisions, newest first
  prune [name]              drop old revisions beyond the configured keep count
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfgPath := "config/server.toml"
	if p := os.Getenv("SNAPWORLD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOrDefaults(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	switch cmd {
	case "info":
		return cmdInfo(args)
	case "verify":
		return cmdVerify(args)
	case "compact":
		return cmdCompact(args)
	case "init":
		return cmdInit(args)
	case "run":
		return cmdRun(args, cfg, log)
	case "store":
		return cmdStore(args, cfg, log)
	case "fetch":
		return cmdFetch(args, cfg, log)
	case "list":
		return cmdList(args, cfg, log)
	case "prune":
		return cmdPrune(args, cfg, log)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func readWorldFile(path string) (*world.World, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w, err := world.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

func writeWorldFile(w *world.World, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := w.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func cmdInfo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: snapworld info <file>")
	}
	w, err := readWorldFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("entities: %d alive, %d slots\n", w.Entities().Alive(), w.Entities().Len())
	fmt.Printf("components: %d\n", len(w.ComponentIDs()))
	for _, id := range w.ComponentIDs() {
		c, _ := w.Component(id)
		if c.IsMarker() {
			fmt.Printf("  %5d %s (marker)\n", id, c.Name())
			continue
		}
		fmt.Printf("  %5d %s: %d records, fields %v\n", id, c.Name(), c.Len(), c.Scheme())
	}
	if g := w.Global(); !g.IsEmpty() {
		fmt.Printf("global: fields %v\n", g.Scheme())
	}
	return nil
}

func cmdVerify(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: snapworld verify <file>")
	}
	if _, err := readWorldFile(args[0]); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func cmdCompact(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: snapworld compact <file> [out]")
	}
	out := args[0]
	if len(args) == 2 {
		out = args[1]
	}
	w, err := readWorldFile(args[0])
	if err != nil {
		return err
	}
	return writeWorldFile(w, out)
}

func cmdInit(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: snapworld init <template.yaml> <out>")
	}
	tpl, err := data.LoadWorldTemplate(args[0])
	if err != nil {
		return err
	}
	w, err := tpl.Build()
	if err != nil {
		return err
	}
	return writeWorldFile(w, args[1])
}

func cmdRun(args []string, cfg *config.Config, log *zap.Logger) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: snapworld run <file> <script.lua> [out]")
	}
	out := args[0]
	if len(args) == 3 {
		out = args[2]
	}
	w, err := readWorldFile(args[0])
	if err != nil {
		return err
	}

	eng := scripting.NewEngine(w, log)
	defer eng.Close()
	if err := eng.LoadDir(cfg.Scripting.Dir); err != nil {
		return fmt.Errorf("load scripts: %w", err)
	}

	src, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	if err := eng.DoString(string(src)); err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}
	return writeWorldFile(w, out)
}

func openDB(ctx context.Context, cfg *config.Config, log *zap.Logger) (*persist.DB, error) {
	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

func cmdStore(args []string, cfg *config.Config, log *zap.Logger) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: snapworld store <file> [name]")
	}
	name := cfg.Snapshot.Name
	if len(args) == 2 {
		name = args[1]
	}
	w, err := readWorldFile(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	row, err := persist.NewSnapshotRepo(db).Save(ctx, name, w)
	if err != nil {
		return err
	}
	log.Info("snapshot stored",
		zap.Int64("id", row.ID),
		zap.String("name", row.Name),
		zap.Int32("size", row.Size),
		zap.String("digest", fmt.Sprintf("%x", row.Digest[:8])))
	return nil
}

func cmdFetch(args []string, cfg *config.Config, log *zap.Logger) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: snapworld fetch <out> [name|#id]")
	}
	out := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := persist.NewSnapshotRepo(db)

	var w *world.World
	var row *persist.SnapshotRow
	if len(args) == 2 && len(args[1]) > 1 && args[1][0] == '#' {
		id, perr := strconv.ParseInt(args[1][1:], 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid snapshot id %q", args[1])
		}
		w, row, err = repo.LoadByID(ctx, id)
	} else {
		name := cfg.Snapshot.Name
		if len(args) == 2 {
			name = args[1]
		}
		w, row, err = repo.LoadLatest(ctx, name)
	}
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("no such snapshot")
	}

	if err := writeWorldFile(w, out); err != nil {
		return err
	}
	log.Info("snapshot fetched",
		zap.Int64("id", row.ID),
		zap.String("name", row.Name),
		zap.Time("created_at", row.CreatedAt))
	return nil
}

func cmdList(args []string, cfg *config.Config, log *zap.Logger) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: snapworld list [name]")
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := persist.NewSnapshotRepo(db).List(ctx, name, 100)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Printf("#%-6d %-20s %8d bytes  %x  %s\n",
			r.ID, r.Name, r.Size, r.Digest[:8], r.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func cmdPrune(args []string, cfg *config.Config, log *zap.Logger) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: snapworld prune [name]")
	}
	name := cfg.Snapshot.Name
	if len(args) == 1 {
		name = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := persist.NewSnapshotRepo(db).Prune(ctx, name, cfg.Snapshot.Keep)
	if err != nil {
		return err
	}
	log.Info("snapshots pruned",
		zap.String("name", name),
		zap.Int("keep", cfg.Snapshot.Keep),
		zap.Int64("removed", removed))
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
