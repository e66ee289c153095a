package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pspoerri/reproject/internal/config"
	"github.com/pspoerri/reproject/internal/gridshift"
	"github.com/pspoerri/reproject/internal/reproject"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// app holds what every subcommand needs once flags and config are parsed.
type app struct {
	v        *viper.Viper
	log      *logrus.Logger
	fs       afero.Fs
	settings config.Settings
	registry *config.Registry
}

func newApp() *app {
	return &app{
		v:   config.New(),
		log: logrus.New(),
		fs:  afero.NewOsFs(),
	}
}

// setup runs before every subcommand.
func (a *app) setup() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	if err := config.ReadConfigFile(a.v); err != nil {
		return err
	}
	s, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if err := s.ConfigureLogger(a.log); err != nil {
		return err
	}
	a.settings = s

	a.registry = config.NewRegistry()
	if err := a.registry.LoadFiles(a.fs, s.CRSFiles...); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"grid_paths": s.SearchPaths(),
		"crs_files":  s.CRSFiles,
	}).Debug("Configuration loaded")
	return nil
}

func (a *app) store() *gridshift.Store {
	s := gridshift.NewStore(a.fs, a.settings.SearchPaths()...)
	s.SetLogger(a.log)
	return s
}

func (a *app) engine() *reproject.Engine {
	return reproject.NewEngine(reproject.Options{
		Grid:  a.settings.GridOptions(a.log),
		Store: a.store(),
	})
}

// bind links a flag to a configuration key so that flags override
// environment and config file values.
func (a *app) bind(fs *pflag.FlagSet, key, flag string) {
	if err := a.v.BindPFlag(key, fs.Lookup(flag)); err != nil {
		panic(errors.Wrapf(err, "binding --%s", flag))
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reproject",
		Short: "Convert coordinates between reference systems.",
		Long: `reproject converts point coordinates between coordinate reference systems,
including datum changes through Helmert parameters and grid-shift files
(CTable2, NTv2, GeoTIFF).

Settings come from flags, from environment variables named REPROJECT_<KEY>
(for example REPROJECT_GRIDS_PATHS), from a .env file in the working
directory and from the file given with --config.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.setup() },
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "configuration file (toml, yaml or json)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.StringSlice("grids", nil, "directories searched for grid-shift files")
	pf.StringSlice("crs", nil, "TOML files with [[crs]] descriptors")
	a.bind(pf, config.KeyConfig, "config")
	a.bind(pf, config.KeyLogLevel, "log-level")
	a.bind(pf, config.KeyLogFormat, "log-format")
	a.bind(pf, config.KeyGridPaths, "grids")
	a.bind(pf, config.KeyCRSFiles, "crs")

	root.AddCommand(a.pointsCmd(), a.gridInfoCmd(), a.convertCmd(), a.listCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reproject %s (commit %s, built %s)\n", version, commit, buildDate)
		},
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newApp()
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		a.log.WithError(err).Error("reproject failed")
		os.Exit(1)
	}
}
