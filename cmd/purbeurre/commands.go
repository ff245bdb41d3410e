package main

import (
	"github.com/urfave/cli/v3"

	"github.com/sakif/pur-beurre/internal/service"
)

const version = "1.0.0"

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "purbeurre",
		Usage:   "Find healthier substitutes for everyday food",
		Version: version,
		Commands: []*cli.Command{
			serveCommand(r),
			importCommand(r),
			substitutesCommand(r),
			createSuperuserCommand(r),
			configCommand(r),
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file (TOML)",
		Sources: cli.EnvVars("PURBEURRE_CONFIG"),
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "import",
		Aliases: []string{"db_init"},
		Usage:   "Import the catalog categories from Open Food Facts",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringSliceFlag{
				Name:  "category",
				Usage: "Import only this category (repeatable); default: the whole catalog",
			},
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "YAML catalog replacing the embedded categories.yaml",
			},
		},
		Action: r.Import,
	}
}

func substitutesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "substitutes",
		Usage:     "Print the healthiest products sharing a category with a product",
		ArgsUsage: "<barcode>",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "code",
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of substitutes",
				Value:   service.DefaultSubstitutes,
			},
		},
		Action: r.Substitutes,
	}
}

func createSuperuserCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "createsuperuser",
		Usage: "Create an administrator account",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "email",
				Usage:    "Email of the account",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "password",
				Usage:    "Password of the account",
				Sources:  cli.EnvVars("PURBEURRE_SUPERUSER_PASSWORD"),
				Required: true,
			},
			&cli.StringFlag{
				Name:  "first-name",
				Usage: "First name shown on the site",
				Value: service.DefaultSuperuserName,
			},
		},
		Action: r.CreateSuperuser,
	}
}

func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration helpers",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the default configuration to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Destination file",
						Value:   "config.toml",
					},
				},
				Action: r.ConfigInit,
			},
		},
	}
}
