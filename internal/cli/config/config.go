// Package config merges configuration from defaults, an optional YAML file,
// a named profile, SOUNDSIFT_* environment variables, and command line flags,
// then validates the result into the engine Options plus the CLI-only
// presentation settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"

	"github.com/soundsift/soundsift/pkg/analysis"
	"github.com/soundsift/soundsift/pkg/analysis/state"
)

const (
	EnvPrefix         = "SOUNDSIFT"
	DefaultConfigName = "soundsift"
)

// metricsSchema validates the shape of the metrics section before it is
// handed to the engine; a typo'd key fails fast here instead of surfacing as
// a confusing per-file error mid-run.
const metricsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name"],
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "enabled": {"type": "boolean"},
      "options": {"type": "object"}
    },
    "additionalProperties": false
  }
}`

// Settings bundles the engine options with the CLI-only settings that never
// reach the library: report destination, output format, and TUI selection.
type Settings struct {
	Opts analysis.Options

	OutputPath      string
	OutputFormat    string
	TuiEnabled      bool
	Verbose         bool
	StateFormat     string
	CalibrationFile string
	ConfigFilePath  string
	ProfileName     string
	AppVersion      string
}

// fileConfig is the viper unmarshal target; its keys are the config file
// vocabulary and double as flag names.
type fileConfig struct {
	Input              string                  `mapstructure:"input"`
	Output             string                  `mapstructure:"output"`
	Extension          string                  `mapstructure:"extension"`
	Recursive          bool                    `mapstructure:"recursive"`
	Ignore             []string                `mapstructure:"ignore"`
	Workers            int                     `mapstructure:"workers"`
	Force              bool                    `mapstructure:"force"`
	Resume             bool                    `mapstructure:"resume"`
	StateFile          string                  `mapstructure:"stateFile"`
	StateFormat        string                  `mapstructure:"stateFormat"`
	ParallelChannels   bool                    `mapstructure:"parallelChannels"`
	ChannelConcurrency int                     `mapstructure:"channelConcurrency"`
	OutputFormat       string                  `mapstructure:"outputFormat"`
	Tui                bool                    `mapstructure:"tui"`
	CalibrationFile    string                  `mapstructure:"calibrationFile"`
	Verbose            bool                    `mapstructure:"verbose"`
	Metrics            []analysis.MetricConfig `mapstructure:"metrics"`
}

// LoadAndValidate loads configuration from all sources, validates the merged
// result, loads the calibration table if one is configured, and sets up the
// logger. Flags have the highest priority.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (Settings, *slog.Logger, error) {
	var settings Settings
	v := viper.New()

	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			tempLogger.Error("Failed to get user home directory", slog.Any("error", err))
			return settings, tempLogger, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags.")
		} else {
			used := cfgFile
			if used == "" {
				used = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", used), slog.Any("error", err))
			return settings, tempLogger, fmt.Errorf("error reading config file '%s': %w", used, err)
		}
	} else {
		settings.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", settings.ConfigFilePath))
	}

	settings.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		if !v.IsSet(profileKey) {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			err := fmt.Errorf("profile '%s' not found in config file '%s'", profileName, configPath)
			tempLogger.Error(err.Error())
			return settings, tempLogger, err
		}
		profileSettings := v.Sub(profileKey)
		if profileSettings == nil {
			err := fmt.Errorf("failed to load profile '%s' settings from config file '%s'", profileName, v.ConfigFileUsed())
			tempLogger.Error(err.Error())
			return settings, tempLogger, err
		}
		if err := v.MergeConfigMap(profileSettings.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.Any("error", err))
			return settings, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Config keys are camelCase, flags are kebab-case; bind each flag to its
	// config key so viper's usual precedence (flag > env > file > default)
	// applies without aliases, which Unmarshal does not resolve.
	flagBindings := map[string]string{
		"input":              "input",
		"output":             "output",
		"extension":          "extension",
		"recursive":          "recursive",
		"ignore":             "ignore",
		"workers":            "workers",
		"force":              "force",
		"resume":             "resume",
		"stateFile":          "state-file",
		"stateFormat":        "state-format",
		"parallelChannels":   "parallel-channels",
		"channelConcurrency": "channel-concurrency",
		"outputFormat":       "output-format",
		"calibrationFile":    "calibration",
		"verbose":            "verbose",
	}
	for key, flagName := range flagBindings {
		flag := flags.Lookup(flagName)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", flagName))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			tempLogger.Error("Error binding flag", slog.String("flag", flagName), slog.Any("error", err))
			return settings, tempLogger, fmt.Errorf("error binding flag '--%s': %w", flagName, err)
		}
	}

	// Validate the metrics section shape before unmarshalling; mapstructure
	// would silently drop unknown keys a schema check can name.
	if raw := v.Get("metrics"); raw != nil {
		result, err := gojsonschema.Validate(
			gojsonschema.NewStringLoader(metricsSchema),
			gojsonschema.NewGoLoader(raw),
		)
		if err != nil {
			tempLogger.Error("Error validating metrics configuration", slog.Any("error", err))
			return settings, tempLogger, fmt.Errorf("%w: metrics section: %w", analysis.ErrConfigValidation, err)
		}
		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			err := fmt.Errorf("%w: invalid metrics section: %s", analysis.ErrConfigValidation, strings.Join(details, "; "))
			tempLogger.Error(err.Error())
			return settings, tempLogger, err
		}
	}

	var cfg fileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return settings, tempLogger, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Explicit flag values win over anything unmarshalled from file or env.
	if flags.Changed("input") {
		if val, _ := flags.GetString("input"); val != "" {
			cfg.Input = val
		}
	}
	if flags.Changed("output") {
		if val, _ := flags.GetString("output"); val != "" {
			cfg.Output = val
		}
	}
	if flags.Changed("force") {
		cfg.Force, _ = flags.GetBool("force")
	}
	if flags.Changed("resume") {
		cfg.Resume, _ = flags.GetBool("resume")
	}
	if flags.Changed("recursive") {
		cfg.Recursive, _ = flags.GetBool("recursive")
	}
	if flags.Changed("parallel-channels") {
		cfg.ParallelChannels, _ = flags.GetBool("parallel-channels")
	}
	cfg.Verbose = cfg.Verbose || verbose

	// Metric names given on the command line enable those metrics with
	// default options, replacing the configured list.
	if flags.Changed("metric") {
		names, _ := flags.GetStringArray("metric")
		cfg.Metrics = make([]analysis.MetricConfig, 0, len(names))
		for _, name := range names {
			cfg.Metrics = append(cfg.Metrics, analysis.MetricConfig{Name: name, Enabled: true})
		}
	}

	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logHandler)

	settings.AppVersion = appVersion
	settings.Verbose = cfg.Verbose
	settings.OutputPath = cfg.Output
	settings.OutputFormat = cfg.OutputFormat
	settings.StateFormat = cfg.StateFormat
	settings.CalibrationFile = cfg.CalibrationFile
	settings.TuiEnabled = cfg.Tui
	if cfg.Verbose {
		settings.TuiEnabled = false
	}
	if flags.Changed("no-tui") {
		if noTui, _ := flags.GetBool("no-tui"); noTui {
			settings.TuiEnabled = false
		}
	}

	settings.Opts = analysis.Options{
		InputPath:          cfg.Input,
		Extension:          cfg.Extension,
		Recursive:          cfg.Recursive,
		IgnorePatterns:     cfg.Ignore,
		Metrics:            cfg.Metrics,
		ParallelChannels:   cfg.ParallelChannels,
		ChannelConcurrency: cfg.ChannelConcurrency,
		Concurrency:        cfg.Workers,
		Force:              cfg.Force,
		ResumeEnabled:      cfg.Resume,
		StateFilePath:      cfg.StateFile,
		ProgressLabel:      analysis.DefaultProgressLabel,
		Logger:             logHandler,
	}

	if err := validateAndDerive(&settings, logger); err != nil {
		return settings, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", settings.ConfigFilePath),
		slog.String("profile", settings.ProfileName),
		slog.Bool("verbose", settings.Verbose),
		slog.String("logLevel", logLevel.String()),
	)

	return settings, logger, nil
}

// setDefaults establishes the default configuration values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("extension", analysis.DefaultExtension)
	v.SetDefault("recursive", false)
	v.SetDefault("ignore", []string{})
	v.SetDefault("workers", analysis.DefaultConcurrency)
	v.SetDefault("force", false)
	v.SetDefault("resume", true)
	v.SetDefault("stateFormat", state.DefaultFormat)
	v.SetDefault("parallelChannels", true)
	v.SetDefault("channelConcurrency", analysis.DefaultChannelConcurrency)
	v.SetDefault("outputFormat", "text")
	v.SetDefault("tui", true)
	v.SetDefault("metrics", defaultMetricsConfig())
}

// defaultMetricsConfig enables every built-in metric with default options.
func defaultMetricsConfig() []map[string]any {
	out := make([]map[string]any, 0, 4)
	for _, name := range []string{"rms", "peak", "zcr", "stats"} {
		out = append(out, map[string]any{"name": name, "enabled": true})
	}
	return out
}

// isValidEnumValue checks if a value is in the allowed set. Case-sensitive.
func isValidEnumValue[T ~string](value T, allowedValues []T) bool {
	return slices.Contains(allowedValues, value)
}

// validateAndDerive performs semantic validation on the merged settings and
// resolves derived values (absolute paths, worker count, calibration table).
// Validation errors wrap analysis.ErrConfigValidation.
func validateAndDerive(settings *Settings, logger *slog.Logger) error {
	opts := &settings.Opts

	if opts.InputPath == "" {
		err := fmt.Errorf("%w: input path is required (-i, --input)", analysis.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "input"))
		return err
	}
	absInput, err := filepath.Abs(opts.InputPath)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve absolute input path '%s': %w", analysis.ErrConfigValidation, opts.InputPath, err)
		logger.Error(err.Error(), slog.String("key", "input"))
		return err
	}
	opts.InputPath = absInput
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("%w: input path '%s' does not exist", analysis.ErrConfigValidation, opts.InputPath)
		} else {
			err = fmt.Errorf("%w: cannot access input path '%s': %w", analysis.ErrConfigValidation, opts.InputPath, err)
		}
		logger.Error(err.Error(), slog.String("key", "input"))
		return err
	}
	if !info.IsDir() {
		err = fmt.Errorf("%w: input path '%s' is not a directory", analysis.ErrConfigValidation, opts.InputPath)
		logger.Error(err.Error(), slog.String("key", "input"))
		return err
	}

	if settings.OutputPath != "" {
		absOutput, err := filepath.Abs(settings.OutputPath)
		if err != nil {
			err = fmt.Errorf("%w: cannot resolve absolute output path '%s': %w", analysis.ErrConfigValidation, settings.OutputPath, err)
			logger.Error(err.Error(), slog.String("key", "output"))
			return err
		}
		settings.OutputPath = absOutput
		if mkdirErr := os.MkdirAll(filepath.Dir(settings.OutputPath), 0o755); mkdirErr != nil {
			err = fmt.Errorf("%w: cannot create output directory for '%s': %w", analysis.ErrConfigValidation, settings.OutputPath, mkdirErr)
			logger.Error(err.Error(), slog.String("key", "output"))
			return err
		}
	}

	allowedOutputFormats := []string{"text", "json"}
	if !isValidEnumValue(settings.OutputFormat, allowedOutputFormats) {
		err = fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v",
			analysis.ErrConfigValidation, settings.OutputFormat, allowedOutputFormats)
		logger.Error(err.Error(), slog.String("key", "outputFormat"))
		return err
	}
	allowedStateFormats := []string{state.FormatGob, state.FormatJSON}
	if !isValidEnumValue(settings.StateFormat, allowedStateFormats) {
		err = fmt.Errorf("%w: invalid value '%s' for key 'stateFormat' (flag --state-format). Allowed: %v",
			analysis.ErrConfigValidation, settings.StateFormat, allowedStateFormats)
		logger.Error(err.Error(), slog.String("key", "stateFormat"))
		return err
	}

	if opts.Concurrency < 0 {
		err = fmt.Errorf("%w: invalid value '%d' for key 'workers' (flag --workers). Must be >= 0", analysis.ErrConfigValidation, opts.Concurrency)
		logger.Error(err.Error(), slog.String("key", "workers"))
		return err
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = runtime.NumCPU()
		logger.Debug("Worker count not set, defaulting to number of CPUs", slog.Int("workers", opts.Concurrency))
	}
	if opts.ChannelConcurrency < 0 {
		err = fmt.Errorf("%w: invalid value '%d' for key 'channelConcurrency' (flag --channel-concurrency). Must be >= 0",
			analysis.ErrConfigValidation, opts.ChannelConcurrency)
		logger.Error(err.Error(), slog.String("key", "channelConcurrency"))
		return err
	}

	if len(opts.Metrics) == 0 {
		err = fmt.Errorf("%w: at least one metric must be configured", analysis.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "metrics"))
		return err
	}
	seen := make(map[string]struct{}, len(opts.Metrics))
	for _, mc := range opts.Metrics {
		if mc.Name == "" {
			err = fmt.Errorf("%w: metric entry with empty name", analysis.ErrConfigValidation)
			logger.Error(err.Error(), slog.String("key", "metrics"))
			return err
		}
		if _, dup := seen[mc.Name]; dup {
			err = fmt.Errorf("%w: metric '%s' configured more than once", analysis.ErrConfigValidation, mc.Name)
			logger.Error(err.Error(), slog.String("key", "metrics"))
			return err
		}
		seen[mc.Name] = struct{}{}
	}

	if opts.ResumeEnabled && opts.StateFilePath == "" {
		opts.StateFilePath = filepath.Join(opts.InputPath, state.StateFileName)
		logger.Debug("State file path not set, defaulting", slog.String("path", opts.StateFilePath))
	}

	if settings.CalibrationFile != "" {
		levels, err := LoadCalibration(settings.CalibrationFile)
		if err != nil {
			err = fmt.Errorf("%w: calibration file '%s': %w", analysis.ErrConfigValidation, settings.CalibrationFile, err)
			logger.Error(err.Error(), slog.String("key", "calibrationFile"))
			return err
		}
		opts.Calibration = levels
		logger.Debug("Calibration table loaded",
			slog.String("path", settings.CalibrationFile),
			slog.Int("recordings", len(levels)))
	}

	logger.Debug("Final derived settings validated",
		slog.Int("workers", opts.Concurrency),
		slog.Bool("resume", opts.ResumeEnabled),
		slog.String("stateFile", opts.StateFilePath),
		slog.Int("metrics", len(opts.Metrics)),
		slog.Bool("tuiEnabledEffective", settings.TuiEnabled),
	)
	return nil
}

// LoadCalibration reads a JSON calibration table mapping recording stems to
// per-channel target levels in dB. Each value may be a single number
// (broadcast to every channel) or an array of numbers.
func LoadCalibration(path string) (map[string][]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make(map[string][]float64, len(entries))
	for stem, value := range entries {
		var single float64
		if err := json.Unmarshal(value, &single); err == nil {
			out[stem] = []float64{single}
			continue
		}
		var many []float64
		if err := json.Unmarshal(value, &many); err != nil {
			return nil, fmt.Errorf("entry '%s': expected a number or an array of numbers", stem)
		}
		if len(many) == 0 {
			return nil, fmt.Errorf("entry '%s': empty level array", stem)
		}
		out[stem] = many
	}
	return out, nil
}
