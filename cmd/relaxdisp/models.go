package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/urfave/cli/v3"
)

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "models",
		Aliases: []string{"ls"},
		Usage:   "List the registered dispersion models",
		Flags:   outputFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			models := dispersion.Models()
			infos := make([]dispersion.Info, len(models))
			for i, m := range models {
				infos[i] = m.Info()
			}
			if jsonOutput {
				return writeJSON(os.Stdout, infos)
			}
			writeModelTable(os.Stdout, infos)
			return nil
		},
	}
}

func writeModelTable(w io.Writer, infos []dispersion.Info) {
	for _, info := range infos {
		kind := "analytic"
		if info.Numeric {
			kind = "numeric"
		}
		_, _ = fmt.Fprintf(w, "  %-26s %d-site  %-8s %-7s %s\n", info.Name, info.Sites, kind, info.Experiments, info.Description)
	}
	_, _ = fmt.Fprintf(w, "\n%d model(s)\n", len(infos))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
