// Command chunkdata exports database records as ordered, size-bounded
// chunk files and imports them back.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/micurley/chunkdata/internal/app"
	"github.com/micurley/chunkdata/internal/config"
	cerrors "github.com/micurley/chunkdata/internal/errors"
)

var (
	version = "dev"
	commit  = "unknown"
)

// handler runs a parsed command against a ready App.
type handler func(ctx context.Context, a *app.App) error

type globals struct {
	configFile *string
	schema     *string
	dataDir    *string
	traceback  *bool
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("chunkdata: %v", err)
	}

	cli := kingpin.New("chunkdata", "Export and import relational data as chunked fixture files.")
	cli.HelpFlag.Short('h')
	cli.Version(fmt.Sprintf("chunkdata version %s (commit: %s)", version, commit))

	g := globals{
		configFile: cli.Flag("config", "Path to configuration file (YAML or JSON).").String(),
		schema:     cli.Flag("schema", "Path to the entity schema (YAML).").String(),
		dataDir:    cli.Flag("data-dir", "Base directory for relative defaults.").String(),
		traceback:  cli.Flag("traceback", "Return raw errors with all their details.").Bool(),
	}

	handlers := map[string]handler{}
	for _, install := range []func(*kingpin.Application) (*kingpin.CmdClause, handler){
		exportCommand,
		importCommand,
	} {
		cmd, h := install(cli)
		handlers[cmd.FullCommand()] = h
	}

	input := kingpin.MustParse(cli.Parse(os.Args[1:]))

	// Chunk files and summaries go to stdout; logs stay on stderr.
	log.SetFlags(0)
	log.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, g, handlers[input]); err != nil {
		report(err, *g.traceback)
		os.Exit(1)
	}
}

func run(ctx context.Context, g globals, h handler) error {
	cfg, err := loadConfig(*g.configFile, *g.dataDir, *g.schema)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, app.WithTraceback(*g.traceback))
	if err != nil {
		return err
	}
	defer a.Close()

	return h(ctx, a)
}

// loadConfig layers the config file, the environment and flags, in that
// order of increasing priority.
func loadConfig(configFile, dataDir, schema string) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if schema != "" {
		cfg.SchemaPath = schema
	}
	return cfg, nil
}

func report(err error, traceback bool) {
	var cmdErr *app.CommandError
	if errors.As(err, &cmdErr) {
		fmt.Fprintf(os.Stderr, "CommandError: %s\n", cmdErr.Message)
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if !traceback {
		return
	}
	category, code := cerrors.GetCategory(err), cerrors.GetCode(err)
	if category != "" {
		fmt.Fprintf(os.Stderr, "  category: %s\n  code: %s\n", category, code)
	}
	details := cerrors.GetDetails(err)
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", k, details[k])
	}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintf(os.Stderr, "  caused by: %v\n", cause)
	}
}
