package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/vulnscan/clicmds"
)

func main() {
	app := cli.NewApp()
	app.Name = "vulnscan"
	app.Version = "0.1"
	app.Usage = "Match files against vulnerability patterns and run ZAP against urls"
	app.Flags = clicmds.GlobalFlags()
	app.Before = clicmds.SetupLogging
	app.Commands = []*cli.Command{
		{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "scan a file for known vulnerable patterns",
			Action:  clicmds.FileScan,
			Flags:   clicmds.FileFlags(),
		},
		{
			Name:    "url",
			Aliases: []string{"u"},
			Usage:   "crawl and actively scan a url",
			Action:  clicmds.URLScan,
			Flags:   clicmds.URLFlags(),
		},
		{
			Name:    "schedule",
			Aliases: []string{"s"},
			Usage:   "repeat scans on an interval",
			Action:  clicmds.Schedule,
			Flags:   clicmds.ScheduleFlags(),
		},
		{
			Name:   "dbview",
			Usage:  "view stored scan results",
			Action: clicmds.DBView,
			Flags:  clicmds.DBViewFlags(),
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Msg("vulnscan failed")
	}
}
