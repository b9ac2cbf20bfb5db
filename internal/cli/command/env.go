package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/yndnr/credvault/internal/cli/output"
	"github.com/yndnr/credvault/internal/config"
	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/core/service"
	"github.com/yndnr/credvault/internal/telemetry/logger"
	"github.com/yndnr/credvault/internal/telemetry/metric"
	"github.com/yndnr/credvault/pkg/crypto/kdf"
)

// envKey is the app metadata key of the command env.
const envKey = "credvault.env"

// env is the state shared by the commands of one invocation.
type env struct {
	cfg        *config.Config
	configFile string
	overrides  map[string]any
	path       string

	log     logger.Logger
	metrics *metric.Registry
	mgr     *service.Manager

	format   output.Format
	wide     bool
	passFile string

	stdout   io.Writer
	stderr   io.Writer
	in       *bufio.Reader
	tty      *os.File // stdin, when it is a terminal
	progress bool     // stderr is a terminal

	// shell is set while the interactive shell runs; session is the
	// session it keeps open.
	shell   bool
	session atomic.Pointer[service.Session]
}

func getEnv(c *cli.Context) (*env, error) {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok {
		return nil, errors.New("command: not initialised")
	}
	return e, nil
}

func (e *env) setInput(r io.Reader) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		e.tty = f
	}
	if f, ok := e.stderr.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		e.progress = true
	}
	if br, ok := r.(*bufio.Reader); ok {
		e.in = br
		return
	}
	e.in = bufio.NewReader(r)
}

// print writes data in the selected output format.
func (e *env) print(data any) error {
	return output.NewFormatter(e.format, e.wide).Format(e.stdout, data)
}

// result prints msg in table mode and data otherwise.
func (e *env) result(msg string, data any) error {
	if e.format == output.FormatTable {
		_, err := fmt.Fprintln(e.stdout, msg)
		return err
	}
	return e.print(data)
}

// open returns an unlocked session and the function that ends it. Outside
// the shell this unlocks the vault for a single command.
func (e *env) open(ctx context.Context) (*service.Session, func(), error) {
	if e.shell {
		s := e.session.Load()
		if s == nil {
			return nil, nil, domain.ErrSessionLocked.WithDetails("run unlock")
		}
		return s, func() {}, nil
	}
	s, err := e.unlock(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Lock, nil
}

// unlock reads the master passphrase and unlocks the vault.
func (e *env) unlock(ctx context.Context) (*service.Session, error) {
	pass, err := e.passphrase("Master passphrase: ", false)
	if err != nil {
		return nil, err
	}
	defer kdf.Zero(pass)

	var s *service.Session
	err = e.slow("Unlocking "+e.path, func() error {
		var err error
		s, err = e.mgr.Unlock(ctx, e.path, pass)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// slow runs fn behind a spinner when stderr is a terminal.
func (e *env) slow(message string, fn func() error) error {
	if !e.progress {
		return fn()
	}
	sp := output.NewSpinner(e.stderr, message)
	sp.Start()
	err := fn()
	sp.Stop()
	return err
}

func parseID(c *cli.Context) (uint64, error) {
	if c.NArg() != 1 {
		return 0, domain.ErrInvalidParameters.WithDetails("expected one record ID")
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidParameters.WithDetails(fmt.Sprintf("invalid record ID %q", c.Args().First()))
	}
	return id, nil
}
