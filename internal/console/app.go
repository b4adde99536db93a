// Package console wires the hr command line: flags, configuration, logging
// and the actions behind every subcommand.
package console

import (
	"strings"

	"github.com/CERT-Polska/hsn2-console/models"
	"github.com/CERT-Polska/hsn2-console/pkg/report"
	"github.com/urfave/cli/v2"
)

func snapshotFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "snapshot",
		Usage: "Read documents from the local snapshot instead of CouchDB",
	}
}

// NewApp builds the hr application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "hr",
		Usage:   "Browse HSN2 job results",
		Version: "0.2.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   models.DefaultConfigPath,
				Usage:   "Configuration file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"ll"},
				Value:   "WARN",
				Usage:   "Logging level: DEBUG, INFO, WARN or ERROR",
			},
			&cli.StringFlag{
				Name:  "snapshot-path",
				Usage: "Snapshot database (overrides the config file)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "list",
				Aliases:   []string{"l"},
				Usage:     "List the objects of a job",
				ArgsUsage: "<job_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "sort",
						Aliases: []string{"s"},
						Usage:   "Sort by " + strings.Join(report.SortKeys, ", "),
					},
					&cli.StringFlag{
						Name:  "color",
						Value: report.ColorAuto,
						Usage: "Colorize output: auto, always or never",
					},
					&cli.BoolFlag{
						Name:    "tree",
						Aliases: []string{"t"},
						Usage:   "Nest objects under their parent",
					},
					&cli.StringFlag{
						Name:    "classification",
						Aliases: []string{"c"},
						Usage:   "Only show objects with this classification",
					},
					snapshotFlag(),
				},
				Action: ListAction,
			},
			{
				Name:      "summary",
				Aliases:   []string{"u"},
				Usage:     "Count the objects of a job by classification",
				ArgsUsage: "<job_id>",
				Flags:     []cli.Flag{snapshotFlag()},
				Action:    SummaryAction,
			},
			{
				Name:    "deploy",
				Aliases: []string{"d"},
				Usage:   "Install the _design/hr views in CouchDB",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "directory",
						Aliases: []string{"d"},
						Usage:   "Load views from <dir>/<view>/{map,reduce}.js instead of the built-in ones",
					},
				},
				Action: DeployAction,
			},
			{
				Name:      "pull",
				Usage:     "Copy the documents of a job from CouchDB into the snapshot",
				ArgsUsage: "<job_id>",
				Action:    PullAction,
			},
			{
				Name:      "import",
				Usage:     "Load exported documents into the snapshot",
				ArgsUsage: "<file.json>",
				Action:    ImportAction,
			},
			{
				Name:  "jobs",
				Usage: "List the jobs held in the snapshot",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top",
						Value: 3,
						Usage: "Number of most frequent classifications shown per job",
					},
				},
				Action: JobsAction,
			},
		},
	}
}
