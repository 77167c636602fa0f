/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"code.cloudfoundry.org/bytefmt"

	"github.com/acronis/go-wsrelay/config"
)

const (
	cfgKeyPrefix        = "log"
	cfgKeyLevel         = "level"
	cfgKeyFormat        = "format"
	cfgKeyOutput        = "output"
	cfgKeyNoColor       = "nocolor"
	cfgKeyAddCaller     = "addCaller"
	cfgKeyFilePath      = "file.path"
	cfgKeyRotCompress   = "file.rotation.compress"
	cfgKeyRotMaxSize    = "file.rotation.maxSize"
	cfgKeyRotMaxBackups = "file.rotation.maxBackups"
	cfgKeyRotMaxAgeDays = "file.rotation.maxAgeDays"
	cfgKeyRotLocalTime  = "file.rotation.localTimeInNames"
	cfgKeyErrNoVerbose  = "error.noVerbose"
	cfgKeyErrVerboseSfx = "error.verboseSuffix"
)

// Rotation defaults and lower bounds.
const (
	DefaultFileRotationMaxSizeBytes = 250 << 20
	MinFileRotationMaxSizeBytes     = 1 << 20
	DefaultFileRotationMaxBackups   = 10
	MinFileRotationMaxBackups       = 1
)

const defaultErrorVerboseSuffix = "_verbose"

// Level is a minimal level of logged entries.
type Level string

// Levels from the most to the least severe.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format is an entry encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is where entries are written.
type Output string

const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	// OutputFile writes to File.Path rotated by size.
	OutputFile Output = "file"
)

// Config is the "log" section of the relay configuration.
type Config struct {
	Level     Level            `mapstructure:"level" yaml:"level" json:"level"`
	Format    Format           `mapstructure:"format" yaml:"format" json:"format"`
	Output    Output           `mapstructure:"output" yaml:"output" json:"output"`
	NoColor   bool             `mapstructure:"nocolor" yaml:"nocolor" json:"nocolor"`
	AddCaller bool             `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`
	File      FileOutputConfig `mapstructure:"file" yaml:"file" json:"file"`
	Error     ErrorConfig      `mapstructure:"error" yaml:"error" json:"error"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// FileOutputConfig is used with OutputFile. Path may contain {{pid}} and {{starttime}} placeholders.
type FileOutputConfig struct {
	Path     string             `mapstructure:"path" yaml:"path" json:"path"`
	Rotation FileRotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

type FileRotationConfig struct {
	Compress         bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize          config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups       int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays       int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	LocalTimeInNames bool            `mapstructure:"localTimeInNames" yaml:"localTimeInNames" json:"localTimeInNames"`
}

// ErrorConfig controls how error fields are encoded.
// Unless NoVerbose is set, an error implementing fmt.Formatter also gets
// its verbose form logged under "error" + VerboseSuffix.
type ErrorConfig struct {
	NoVerbose     bool   `mapstructure:"noVerbose" yaml:"noVerbose" json:"noVerbose"`
	VerboseSuffix string `mapstructure:"verboseSuffix" yaml:"verboseSuffix" json:"verboseSuffix"`
}

// NewConfig returns a Config to be filled by config.Loader.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig returns a Config holding the same values the loader would set for empty input.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: OutputStdout,
		File: FileOutputConfig{Rotation: FileRotationConfig{
			MaxSize:    DefaultFileRotationMaxSizeBytes,
			MaxBackups: DefaultFileRotationMaxBackups,
		}},
		Error: ErrorConfig{VerboseSuffix: defaultErrorVerboseSuffix},
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	def := NewDefaultConfig()
	dp.SetDefault(cfgKeyLevel, string(def.Level))
	dp.SetDefault(cfgKeyFormat, string(def.Format))
	dp.SetDefault(cfgKeyOutput, string(def.Output))
	dp.SetDefault(cfgKeyRotMaxSize, bytefmt.ByteSize(uint64(def.File.Rotation.MaxSize)))
	dp.SetDefault(cfgKeyRotMaxBackups, def.File.Rotation.MaxBackups)
	dp.SetDefault(cfgKeyErrVerboseSfx, def.Error.VerboseSuffix)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Level, err = getEnum(dp, cfgKeyLevel, LevelError, LevelWarn, LevelInfo, LevelDebug); err != nil {
		return err
	}
	if c.Format, err = getEnum(dp, cfgKeyFormat, FormatJSON, FormatText); err != nil {
		return err
	}
	if c.Output, err = getEnum(dp, cfgKeyOutput, OutputStdout, OutputStderr, OutputFile); err != nil {
		return err
	}
	if c.NoColor, err = dp.GetBool(cfgKeyNoColor); err != nil {
		return err
	}
	if c.AddCaller, err = dp.GetBool(cfgKeyAddCaller); err != nil {
		return err
	}
	if err = c.setFile(dp); err != nil {
		return err
	}
	if c.Error.NoVerbose, err = dp.GetBool(cfgKeyErrNoVerbose); err != nil {
		return err
	}
	c.Error.VerboseSuffix, err = dp.GetString(cfgKeyErrVerboseSfx)
	return err
}

func (c *Config) setFile(dp config.DataProvider) (err error) {
	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.Output == OutputFile && c.File.Path == "" {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}

	rot := &c.File.Rotation
	maxSize, err := dp.GetSizeInBytes(cfgKeyRotMaxSize)
	if err != nil {
		return err
	}
	if maxSize < MinFileRotationMaxSizeBytes {
		return dp.WrapKeyErr(cfgKeyRotMaxSize, fmt.Errorf("should be >= %s", bytefmt.ByteSize(MinFileRotationMaxSizeBytes)))
	}
	rot.MaxSize = config.ByteSize(maxSize)

	if rot.MaxBackups, err = dp.GetInt(cfgKeyRotMaxBackups); err != nil {
		return err
	}
	if rot.MaxBackups < MinFileRotationMaxBackups {
		return dp.WrapKeyErr(cfgKeyRotMaxBackups, fmt.Errorf("should be >= %d", MinFileRotationMaxBackups))
	}
	if rot.MaxAgeDays, err = dp.GetInt(cfgKeyRotMaxAgeDays); err != nil {
		return err
	}
	if rot.MaxAgeDays < 0 {
		return dp.WrapKeyErr(cfgKeyRotMaxAgeDays, fmt.Errorf("should be >= 0"))
	}
	if rot.Compress, err = dp.GetBool(cfgKeyRotCompress); err != nil {
		return err
	}
	rot.LocalTimeInNames, err = dp.GetBool(cfgKeyRotLocalTime)
	return err
}

// getEnum reads a case-insensitive value that must be one of allowed.
func getEnum[T ~string](dp config.DataProvider, key string, allowed ...T) (T, error) {
	set := make([]string, len(allowed))
	for i := range allowed {
		set[i] = string(allowed[i])
	}
	v, err := dp.GetStringFromSet(key, set, true)
	if err != nil {
		return "", err
	}
	return T(strings.ToLower(v)), nil
}
