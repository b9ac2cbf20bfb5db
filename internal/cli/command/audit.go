package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Inspect the audit log",
		Subcommands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "Check the hash chain of the audit log",
				Action: func(c *cli.Context) error {
					e, err := getEnv(c)
					if err != nil {
						return err
					}
					n, err := e.mgr.AuditVerify(c.Context, e.path)
					if err != nil {
						return err
					}
					return e.result(fmt.Sprintf("audit log intact: %d entries", n), map[string]uint64{"entries": n})
				},
			},
			{
				Name:  "list",
				Usage: "Show the most recent audit entries",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "number of entries, 0 for all", Value: 20},
				},
				Action: func(c *cli.Context) error {
					e, err := getEnv(c)
					if err != nil {
						return err
					}
					entries, err := e.mgr.AuditEntries(c.Context, e.path, c.Int("limit"))
					if err != nil {
						return err
					}
					return e.print(auditViews(entries))
				},
			},
		},
	}
}
