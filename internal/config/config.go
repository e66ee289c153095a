// Package config gathers the settings of the reproject command from flags,
// environment, .env and config files, and builds coordinate systems from
// TOML descriptor files.
package config

import (
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pspoerri/reproject/internal/gridshift"
	"github.com/pspoerri/reproject/internal/reproject"
)

// EnvPrefix prefixes every configuration environment variable, e.g.
// REPROJECT_GRIDS_STRICT_COVERAGE.
const EnvPrefix = "REPROJECT"

// Configuration keys.
const (
	KeyConfig            = "config"
	KeyGridPaths         = "grids.paths"
	KeyStrictCoverage    = "grids.strict_coverage"
	KeyStrictConvergence = "grids.strict_convergence"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyCRSFiles          = "crs.files"
	KeyWorkers           = "workers"
	KeyBatchSize         = "batch_size"
)

// Settings is the resolved configuration.
type Settings struct {
	GridPaths         []string
	StrictCoverage    bool
	StrictConvergence bool
	LogLevel          string
	LogFormat         string
	CRSFiles          []string
	Workers           int
	BatchSize         int
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyGridPaths, []string{})
	v.SetDefault(KeyStrictCoverage, true)
	v.SetDefault(KeyStrictConvergence, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyCRSFiles, []string{})
	v.SetDefault(KeyWorkers, runtime.NumCPU())
	v.SetDefault(KeyBatchSize, reproject.DefaultBatchSize)
	return v
}

// LoadDotEnv loads variables from path into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "loading %s", path)
	}
	return nil
}

// ReadConfigFile reads the file named by the config key, if any. The format
// follows the file extension.
func ReadConfigFile(v *viper.Viper) error {
	path := v.GetString(KeyConfig)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading configuration file %s", path)
	}
	return nil
}

// Load resolves the settings from v.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		GridPaths:         splitList(v.GetStringSlice(KeyGridPaths)),
		StrictCoverage:    v.GetBool(KeyStrictCoverage),
		StrictConvergence: v.GetBool(KeyStrictConvergence),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
		CRSFiles:          splitList(v.GetStringSlice(KeyCRSFiles)),
		Workers:           v.GetInt(KeyWorkers),
		BatchSize:         v.GetInt(KeyBatchSize),
	}
	if s.Workers < 1 {
		return s, errors.Errorf("%s must be at least 1, got %d", KeyWorkers, s.Workers)
	}
	if s.BatchSize < 1 {
		return s, errors.Errorf("%s must be at least 1, got %d", KeyBatchSize, s.BatchSize)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return s, errors.Errorf("%s must be text or json, got %q", KeyLogFormat, s.LogFormat)
	}
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		return s, errors.Wrap(err, KeyLogLevel)
	}
	return s, nil
}

// splitList accepts both repeated values and a single PATH-style value,
// which is how list settings arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.FieldsFunc(v, func(r rune) bool { return r == os.PathListSeparator || r == ',' }) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// ConfigureLogger applies the level and format to log.
func (s Settings) ConfigureLogger(log *logrus.Logger) error {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return errors.Wrap(err, KeyLogLevel)
	}
	log.SetLevel(level)
	if s.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// GridOptions returns the grid failure modes.
func (s Settings) GridOptions(log logrus.FieldLogger) gridshift.Options {
	return gridshift.Options{
		StrictCoverage:    s.StrictCoverage,
		StrictConvergence: s.StrictConvergence,
		Logger:            log,
	}
}

// SearchPaths returns the configured grid directories followed by the
// default ones.
func (s Settings) SearchPaths() []string {
	return append(append([]string(nil), s.GridPaths...), gridshift.DefaultPaths()...)
}
