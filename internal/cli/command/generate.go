package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/credvault/internal/cli/output"
	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/pkg/passgen"
)

type generatedView struct {
	Password string `json:"password" yaml:"password"`
	Length   int    `json:"length" yaml:"length"`
	Score    int    `json:"score" yaml:"score"`
}

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Print a random password",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "length", Aliases: []string{"n"}, Usage: "password length", Value: passgen.DefaultLength},
			&cli.BoolFlag{Name: "no-symbols", Usage: "letters and digits only"},
		},
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			pw, err := passgen.Generate(passgen.Options{
				Length:  c.Int("length"),
				Symbols: !c.Bool("no-symbols"),
			})
			if err != nil {
				return domain.ErrInvalidParameters.WithDetails(err.Error())
			}
			if e.format == output.FormatTable {
				_, err = fmt.Fprintln(e.stdout, pw)
				return err
			}
			return e.print(generatedView{Password: pw, Length: len(pw), Score: passgen.Score(pw)})
		},
	}
}
