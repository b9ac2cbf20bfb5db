package command

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/yndnr/credvault/internal/config"
	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/telemetry/logger"
	"github.com/yndnr/credvault/pkg/crypto/kdf"
	"github.com/yndnr/credvault/pkg/passgen"
)

// PassphraseEnv holds the master passphrase for non-interactive use.
const PassphraseEnv = "CREDVAULT_PASSPHRASE"

var (
	errNoPassphrase = errors.New("no passphrase: use --passphrase-file, " + PassphraseEnv + " or a terminal")
	errNoPassword   = errors.New("no password: use --password-stdin, --generate or a terminal")
	errMismatch     = errors.New("entries do not match")
)

// passphrase returns the master passphrase from the passphrase file, the
// environment or a terminal prompt, in that order. The caller zeroes it.
func (e *env) passphrase(prompt string, confirm bool) ([]byte, error) {
	if e.passFile != "" {
		return readPassphraseFile(e.passFile)
	}
	if v := os.Getenv(PassphraseEnv); v != "" {
		logger.Debug("master passphrase taken from environment")
		return []byte(v), nil
	}
	if e.tty == nil {
		return nil, errNoPassphrase
	}
	return e.prompt(prompt, confirm)
}

// prompt reads a hidden line from the terminal, twice when confirm is set.
func (e *env) prompt(prompt string, confirm bool) ([]byte, error) {
	p, err := e.readHidden(prompt)
	if err != nil {
		return nil, err
	}
	if !confirm {
		return p, nil
	}
	again, err := e.readHidden("Repeat: ")
	defer kdf.Zero(again)
	if err != nil {
		kdf.Zero(p)
		return nil, err
	}
	if !bytes.Equal(p, again) {
		kdf.Zero(p)
		return nil, errMismatch
	}
	return p, nil
}

func (e *env) readHidden(prompt string) ([]byte, error) {
	fmt.Fprint(e.stderr, prompt)
	p, err := term.ReadPassword(int(e.tty.Fd()))
	fmt.Fprintln(e.stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return p, nil
}

func readPassphraseFile(path string) ([]byte, error) {
	path, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read passphrase file: %w", err)
	}
	p := bytes.TrimRight(b, "\r\n")
	if len(p) == 0 {
		kdf.Zero(b)
		return nil, fmt.Errorf("passphrase file %s is empty", path)
	}
	return p, nil
}

// passwordFlags select where add and update take the password from.
func passwordFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "password-stdin",
			Usage: "read the password from the first line of stdin",
		},
		&cli.IntFlag{
			Name:  "generate",
			Usage: "generate a random password of `N` characters",
		},
		&cli.BoolFlag{
			Name:  "no-symbols",
			Usage: "leave symbols out of a generated password",
		},
	}
}

// password returns the credential password chosen by flags. Without a
// flag it prompts on a terminal when required and returns nil otherwise.
func (e *env) password(c *cli.Context, required bool) (*string, error) {
	switch {
	case c.IsSet("generate") && c.Bool("password-stdin"):
		return nil, domain.ErrInvalidParameters.WithDetails("--generate and --password-stdin are exclusive")
	case c.IsSet("generate"):
		pw, err := passgen.Generate(passgen.Options{
			Length:  c.Int("generate"),
			Symbols: !c.Bool("no-symbols"),
		})
		if err != nil {
			return nil, domain.ErrInvalidParameters.WithCause(err).WithDetails(err.Error())
		}
		return &pw, nil
	case c.Bool("password-stdin"):
		line, err := e.in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return nil, fmt.Errorf("read password: %w", err)
		}
		pw := strings.TrimRight(line, "\r\n")
		return &pw, nil
	case !required:
		return nil, nil
	case e.tty == nil:
		return nil, errNoPassword
	}

	b, err := e.prompt("Password: ", true)
	if err != nil {
		return nil, err
	}
	pw := string(b)
	kdf.Zero(b)
	return &pw, nil
}
