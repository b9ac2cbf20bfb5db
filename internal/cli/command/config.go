package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/credvault/internal/cli/output"
	"github.com/yndnr/credvault/internal/infra/buildinfo"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective configuration",
				Action: func(c *cli.Context) error {
					e, err := getEnv(c)
					if err != nil {
						return err
					}
					f := output.NewFormatter(e.format, e.wide)
					if e.format == output.FormatTable {
						f = &output.YAMLFormatter{}
					}
					return f.Format(e.stdout, e.cfg)
				},
			},
			{
				Name:  "path",
				Usage: "Print the configuration file path",
				Action: func(c *cli.Context) error {
					e, err := getEnv(c)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(e.stdout, e.configFile)
					return err
				},
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			if e.format == output.FormatTable {
				_, err = fmt.Fprintf(e.stdout, "credvault %s\n", buildinfo.String())
				return err
			}
			return e.print(buildinfo.Get())
		},
	}
}
