package main

import (
	"context"
	"fmt"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/micurley/chunkdata/internal/app"
)

func importCommand(cli *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := cli.Command("import", "Load fixtures, including chunked fixture directories, into the database.")

	labels := cmd.Arg("fixture", "fixture names or absolute file paths").Required().Strings()
	database := cmd.Flag("database", "Database alias to load into.").Default("default").String()
	createTables := cmd.Flag("create-tables", "Create missing entity tables first.").Bool()

	return cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Import(ctx, app.ImportOptions{
			Labels:       *labels,
			Database:     *database,
			CreateTables: *createTables,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Installed %d object(s) from %d fixture(s)\n", res.Objects, len(res.Files))
		return nil
	}
}
