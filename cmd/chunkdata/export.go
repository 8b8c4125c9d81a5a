package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/micurley/chunkdata/internal/app"
	"github.com/micurley/chunkdata/internal/export"
)

func exportCommand(cli *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := cli.Command("export", "Output the contents of the database, optionally as chunk files.")

	labels := cmd.Arg("labels", "namespace or namespace.Entity labels to export; all when empty").Strings()
	format := cmd.Flag("format", "Serialization format for the output (json, yaml, xml, pb, snappy).").String()
	var indentSet, chunkSet bool
	indent := cmd.Flag("indent", "Indentation width for pretty-printed output.").
		Action(markSet(&indentSet)).Int()
	database := cmd.Flag("database", "Database alias to export from.").Default("default").String()
	excludes := cmd.Flag("exclude", "Namespace or namespace.Entity to exclude; repeatable.").Short('e').Strings()
	natural := cmd.Flag("natural", "Use natural keys for references where available.").Short('n').Bool()
	all := cmd.Flag("all", "Use the base manager, ignoring default filters.").Short('a').Bool()
	chunk := cmd.Flag("chunk", "Maximum number of records per chunk file; 0 writes the payload to stdout.").
		Short('c').Action(markSet(&chunkSet)).Int()
	filespec := cmd.Flag("filespec", "Base name for chunk files.").Short('f').String()
	outputDir := cmd.Flag("output-dir", "Directory chunk files are written to.").String()
	prune := cmd.Flag("prune", "Delete stale numbered chunks of the same base name.").Bool()

	return cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Export(ctx, app.ExportOptions{
			Options: export.Options{
				Labels:         *labels,
				Excludes:       *excludes,
				Format:         *format,
				Indent:         *indent,
				Database:       *database,
				UseNaturalKeys: *natural,
				UseBaseManager: *all,
				Chunk:          *chunk,
				Filespec:       *filespec,
				OutputDir:      *outputDir,
				Prune:          *prune,
			},
			ChunkSet:  chunkSet,
			IndentSet: indentSet,
		})
		if err != nil {
			return err
		}
		if res.Summary == "" {
			_, err = os.Stdout.Write(res.Payload)
			return err
		}
		fmt.Println(res.Summary)
		return nil
	}
}

// markSet records that a flag appeared on the command line.
func markSet(set *bool) kingpin.Action {
	return func(*kingpin.ParseContext) error {
		*set = true
		return nil
	}
}
