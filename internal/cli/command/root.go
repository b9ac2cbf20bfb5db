package command

import (
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/credvault/internal/cli/output"
	"github.com/yndnr/credvault/internal/config"
	"github.com/yndnr/credvault/internal/core/service"
	"github.com/yndnr/credvault/internal/infra/buildinfo"
	"github.com/yndnr/credvault/internal/telemetry/logger"
	"github.com/yndnr/credvault/internal/telemetry/metric"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "credvault",
		Usage:                "Local encrypted credential vault",
		Version:              buildinfo.Get().Version,
		Flags:                globalFlags(),
		Commands:             commands(),
		EnableBashCompletion: true,
		Before:               setup,
		After:                teardown,
	}
}

// commands returns every top-level command.
func commands() []*cli.Command {
	return append(vaultCommands(),
		initCommand(),
		shellCommand(),
		configCommand(),
		versionCommand(),
	)
}

// vaultCommands are shared by the top level and the shell.
func vaultCommands() []*cli.Command {
	return []*cli.Command{
		infoCommand(),
		listCommand(),
		addCommand(),
		getCommand(),
		updateCommand(),
		deleteCommand(),
		generateCommand(),
		auditCommand(),
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "vault",
			Usage: "vault file `PATH`",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "configuration `FILE`",
			EnvVars: []string{"CREDVAULT_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "passphrase-file",
			Usage: "read the master passphrase from `FILE`",
		},
	}
}

// setup loads the configuration and builds the env shared by commands.
func setup(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}

	overrides := map[string]any{}
	if c.IsSet("vault") {
		overrides["vault.path"] = c.String("vault")
	}
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}
	cfg, err := config.Load(config.LoadOptions{
		File:      c.String("config"),
		Required:  c.IsSet("config"),
		Overrides: overrides,
	})
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	svcCfg, err := cfg.ServiceConfig()
	if err != nil {
		return err
	}
	path, err := cfg.VaultPath()
	if err != nil {
		return err
	}
	configFile := c.String("config")
	if configFile == "" {
		configFile = config.DefaultConfigFile
	}
	if configFile, err = config.ExpandPath(configFile); err != nil {
		return err
	}

	metrics := metric.NewRegistry()
	e := &env{
		cfg:        cfg,
		configFile: configFile,
		overrides:  overrides,
		path:       path,
		log:        log,
		metrics:    metrics,
		mgr:        service.NewManager(svcCfg, service.WithLogger(log), service.WithMetrics(metrics)),
		format:     format,
		wide:       c.Bool("wide"),
		passFile:   c.String("passphrase-file"),
		stdout:     c.App.Writer,
		stderr:     c.App.ErrWriter,
	}
	e.setInput(c.App.Reader)
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[envKey] = e

	c.Context = logger.WithLogger(logger.WithOpID(c.Context, ulid.Make().String()), log)
	return nil
}

// teardown locks every session and releases the vault files.
func teardown(c *cli.Context) error {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok {
		return nil
	}
	return e.mgr.Close()
}

// PrintError prints an error message in the CLI's error format.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
