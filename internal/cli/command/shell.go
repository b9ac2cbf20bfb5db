package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/credvault/internal/cli/repl"
	"github.com/yndnr/credvault/internal/config"
	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/infra/confloader"
	"github.com/yndnr/credvault/internal/infra/shutdown"
	"github.com/yndnr/credvault/internal/telemetry/logger"
)

const (
	shutdownTimeout = 5 * time.Second
	idleCheckPeriod = time.Second
)

func shellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive session that stays unlocked until lock, exit or the idle timeout",
		Action: func(c *cli.Context) error {
			e, err := getEnv(c)
			if err != nil {
				return err
			}
			return newShell(e).run(c.Context)
		},
	}
}

// shell runs vault commands line by line against one session.
type shell struct {
	e    *env
	app  *cli.App
	repl *repl.REPL
}

func newShell(e *env) *shell {
	e.shell = true
	sh := &shell{e: e}
	sh.app = &cli.App{
		Name:           "credvault",
		Usage:          "vault shell",
		HideVersion:    true,
		Commands:       append(vaultCommands(), sh.commands()...),
		Metadata:       map[string]any{envKey: e},
		Writer:         e.stdout,
		ErrWriter:      e.stderr,
		Reader:         e.in,
		ExitErrHandler: func(*cli.Context, error) {},
	}

	names := []string{"help"}
	for _, cmd := range sh.app.Commands {
		names = append(names, cmd.Names()...)
	}
	sh.repl = repl.New(e.in, e.stdout, sh.exec,
		repl.WithCommands(names...),
		repl.WithPrompt(sh.prompt),
	)
	e.in = sh.repl.Reader()
	return sh
}

func (sh *shell) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "lock",
			Usage: "Lock the vault and forget the key",
			Action: func(c *cli.Context) error {
				sh.lock()
				_, err := fmt.Fprintln(sh.e.stdout, "vault locked")
				return err
			},
		},
		{
			Name:  "unlock",
			Usage: "Unlock the vault again",
			Action: func(c *cli.Context) error {
				if sh.unlocked() {
					_, err := fmt.Fprintln(sh.e.stdout, "vault already unlocked")
					return err
				}
				if err := sh.unlock(c.Context); err != nil {
					return err
				}
				_, err := fmt.Fprintln(sh.e.stdout, "vault unlocked")
				return err
			},
		},
		{
			Name:  "status",
			Usage: "Show the session state",
			Action: func(c *cli.Context) error {
				v := statusView{Vault: sh.e.path, State: domain.StateLocked.String()}
				if s := sh.e.session.Load(); s != nil {
					v.State = s.State().String()
					if v.State == domain.StateUnlocked.String() {
						v.UnlockedAt = s.UnlockedAt()
						if d := s.Deadline(); !d.IsZero() {
							v.LocksIn = time.Until(d).Round(time.Second)
						}
					}
				}
				return sh.e.print(v)
			},
		},
		{
			Name:  "stats",
			Usage: "Show the counters of this process",
			Action: func(c *cli.Context) error {
				var buf bytes.Buffer
				if err := sh.e.metrics.WriteText(&buf); err != nil {
					return err
				}
				sc := bufio.NewScanner(&buf)
				for sc.Scan() {
					if line := sc.Text(); strings.HasPrefix(line, "credvault_") {
						fmt.Fprintln(sh.e.stdout, line)
					}
				}
				return sc.Err()
			},
		},
	}
}

// run unlocks the vault and reads commands until exit, end of input or a
// termination signal. The session is locked on the way out.
func (sh *shell) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sh.unlock(ctx); err != nil {
		return err
	}

	h := shutdown.NewHandler(shutdownTimeout, sh.e.log.Slog())
	h.OnShutdown("close manager", func(context.Context) error {
		return sh.e.mgr.Close()
	})
	h.OnShutdown("lock sessions", func(context.Context) error {
		sh.e.mgr.Lock(sh.e.path)
		return nil
	})
	if w := sh.watchConfig(); w != nil {
		h.OnShutdown("stop config watcher", func(context.Context) error {
			return w.Stop()
		})
	}
	go h.Wait(ctx)
	go sh.watchIdle(ctx)

	done := make(chan error, 1)
	go func() { done <- sh.repl.Run(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-h.Done():
		fmt.Fprintln(sh.e.stderr, "vault locked")
	}
	cancel()
	return errors.Join(err, h.Shutdown())
}

func (sh *shell) exec(ctx context.Context, args []string) error {
	ctx = logger.WithOpID(ctx, ulid.Make().String())
	return sh.app.RunContext(ctx, append([]string{sh.app.Name}, args...))
}

func (sh *shell) prompt() string {
	state := domain.StateLocked
	if sh.unlocked() {
		state = domain.StateUnlocked
	}
	return fmt.Sprintf("%s [%s]> ", filepath.Base(sh.e.path), state)
}

func (sh *shell) unlocked() bool {
	s := sh.e.session.Load()
	return s != nil && s.State() == domain.StateUnlocked
}

func (sh *shell) unlock(ctx context.Context) error {
	s, err := sh.e.unlock(ctx)
	if err != nil {
		return err
	}
	if old := sh.e.session.Swap(s); old != nil {
		old.Lock()
	}
	return nil
}

func (sh *shell) lock() {
	if s := sh.e.session.Load(); s != nil {
		s.Lock()
	}
}

// watchIdle locks the session as soon as its idle deadline passes rather
// than on the next command.
func (sh *shell) watchIdle(ctx context.Context) {
	ticker := time.NewTicker(idleCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s := sh.e.session.Load(); s != nil {
				s.State()
			}
		}
	}
}

// watchConfig applies log level changes made to the configuration file
// while the shell runs. It returns nil when the file cannot be watched.
func (sh *shell) watchConfig() *confloader.Watcher {
	w, err := confloader.NewWatcher(sh.e.configFile, confloader.WithWatcherLogger(sh.e.log.Slog()))
	if err != nil {
		sh.e.log.Debug("configuration not watched", "file", sh.e.configFile, "error", err)
		return nil
	}
	w.OnChange(func(path string) {
		cfg, err := config.Load(config.LoadOptions{File: path, Overrides: sh.e.overrides})
		if err != nil {
			sh.e.log.Warn("configuration reload failed", "file", path, "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		sh.e.log.Info("log level reloaded", "level", cfg.Log.Level)
	})
	w.StartAsync()
	return w
}
