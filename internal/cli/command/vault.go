package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/core/service"
	"github.com/yndnr/credvault/pkg/crypto/kdf"
)

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create a new vault",
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			pass, err := e.passphrase("New master passphrase: ", true)
			if err != nil {
				return err
			}
			defer kdf.Zero(pass)

			var info *domain.VaultInfo
			err = e.slow("Creating "+e.path, func() error {
				var err error
				info, err = e.mgr.CreateVault(c.Context, e.path, pass)
				return err
			})
			if err != nil {
				return err
			}
			return e.result("created vault "+info.Path, newVaultView(info))
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the vault header without unlocking",
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			info, err := e.mgr.Info(c.Context, e.path)
			if err != nil {
				return err
			}
			return e.print(newVaultView(info))
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List record IDs and labels",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "locked",
				Usage: "list without unlocking (labels are stored in plaintext)",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			var sums []domain.RecordSummary
			if c.Bool("locked") {
				sums, err = e.mgr.ListLocked(c.Context, e.path)
			} else {
				sums, err = withSession(c, e, func(s *service.Session) ([]domain.RecordSummary, error) {
					return s.List(c.Context)
				})
			}
			if err != nil {
				return err
			}
			return e.print(recordViews(sums))
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a credential",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "service or site name", Required: true},
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "account name"},
		}, passwordFlags()...),
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			pw, err := e.password(c, true)
			if err != nil {
				return err
			}
			id, err := withSession(c, e, func(s *service.Session) (uint64, error) {
				return s.Add(c.Context, c.String("label"), c.String("username"), *pw)
			})
			if err != nil {
				return err
			}
			return e.result(fmt.Sprintf("added record %d", id), map[string]uint64{"id": id})
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Decrypt and show a credential",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "show", Aliases: []string{"s"}, Usage: "show the password"},
			&cli.StringFlag{Name: "field", Aliases: []string{"f"}, Usage: "print one field only: label, username or password"},
		},
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			id, err := parseID(c)
			if err != nil {
				return err
			}
			cred, err := withSession(c, e, func(s *service.Session) (*domain.Credential, error) {
				return s.Get(c.Context, id)
			})
			if err != nil {
				return err
			}

			switch f := c.String("field"); f {
			case "":
				return e.print(newCredentialView(cred, c.Bool("show")))
			case "label":
				_, err = fmt.Fprintln(e.stdout, cred.Label)
			case "username":
				_, err = fmt.Fprintln(e.stdout, cred.Username)
			case "password":
				_, err = fmt.Fprintln(e.stdout, cred.Password)
			default:
				return domain.ErrInvalidParameters.WithDetails(fmt.Sprintf("unknown field %q", f))
			}
			return err
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Change fields of a credential",
		ArgsUsage: "ID",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "new label"},
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "new username"},
		}, passwordFlags()...),
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			id, err := parseID(c)
			if err != nil {
				return err
			}
			var p service.CredentialPatch
			if c.IsSet("label") {
				v := c.String("label")
				p.Label = &v
			}
			if c.IsSet("username") {
				v := c.String("username")
				p.Username = &v
			}
			if p.Password, err = e.password(c, false); err != nil {
				return err
			}
			if p.Label == nil && p.Username == nil && p.Password == nil {
				return domain.ErrInvalidParameters.WithDetails("nothing to update")
			}

			_, err = withSession(c, e, func(s *service.Session) (struct{}, error) {
				return struct{}{}, s.Patch(c.Context, id, p)
			})
			if err != nil {
				return err
			}
			return e.result(fmt.Sprintf("updated record %d", id), map[string]uint64{"id": id})
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a credential",
		ArgsUsage: "ID",
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			id, err := parseID(c)
			if err != nil {
				return err
			}
			_, err = withSession(c, e, func(s *service.Session) (struct{}, error) {
				return struct{}{}, s.Delete(c.Context, id)
			})
			if err != nil {
				return err
			}
			return e.result(fmt.Sprintf("deleted record %d", id), map[string]uint64{"id": id})
		},
	}
}

// withSession runs fn on an unlocked session, locking it afterwards
// unless the shell owns it.
func withSession[T any](c *cli.Context, e *env, fn func(*service.Session) (T, error)) (T, error) {
	s, done, err := e.open(c.Context)
	if err != nil {
		var zero T
		return zero, err
	}
	defer done()
	return fn(s)
}
