package clicmds

import (
	"fmt"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/vulnscan/store"
	"gitlab.com/vulnscan/vscan"
)

func DBViewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "id",
			Usage: "print the full report of one scan",
			Value: "",
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "dump the stored results as is",
			Value: false,
		},
	}
}

// DBView lists stored scan results
func DBView(ctx *cli.Context) error {
	datadir := ctx.String("datadir")
	if datadir == "" {
		datadir = vscan.DefaultConfig().DataPath
	}
	results := store.NewResultStore(datadir + "/results")
	if err := results.Init(); err != nil {
		log.Error().Err(err).Msg("failed to init database for viewing")
		return err
	}
	defer func() {
		log.Info().Msg("Closing db & syncing, please wait")
		if err := results.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	if id := ctx.String("id"); id != "" {
		result, err := results.Get(id)
		if err != nil {
			return err
		}
		if ctx.Bool("raw") {
			spew.Fdump(ctx.App.Writer, result)
			return nil
		}
		return printResults(ctx, result)
	}

	entries, err := results.List()
	if err != nil {
		return err
	}
	if ctx.Bool("raw") {
		spew.Fdump(ctx.App.Writer, entries)
		return nil
	}

	fmt.Fprintf(ctx.App.Writer, "Had %d results\n", len(entries))
	tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tMODE\tTARGET\tSTARTED\tFINDINGS\tDEGRADED")
	for _, r := range entries {
		mode := string(r.Mode)
		if mode == "" {
			mode = vscan.NotApplicable
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%t\n", r.ID, r.Type, mode, r.Target,
			r.StartedAt.Format("2006-01-02 15:04:05"), len(r.Findings), r.Degraded.Any())
	}
	return tw.Flush()
}
