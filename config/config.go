package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "KIMPORTGEN"

type Config struct {
	HeaderFile  string `mapstructure:"headerFile" yaml:"headerFile" validate:"required"`
	DefFile     string `mapstructure:"defFile" yaml:"defFile" validate:"required"`
	OutputDir   string `mapstructure:"outputDir" yaml:"outputDir" validate:"required"`
	ExportMacro string `mapstructure:"exportMacro" yaml:"exportMacro"`
	// Defines holds compiler style -D arguments extending the known header macros.
	Defines     string `mapstructure:"defines" yaml:"defines"`
	MaxOrdinal  int    `mapstructure:"maxOrdinal" yaml:"maxOrdinal" validate:"min=0,max=65535"`
	MetricsFile string `mapstructure:"metricsFile" yaml:"metricsFile"`
	Emit        Emit   `mapstructure:"emit" yaml:"emit"`
	Report      Report `mapstructure:"report" yaml:"report"`
	Log         Log    `mapstructure:"log" yaml:"log"`
}

type Emit struct {
	MacroPrefix string `mapstructure:"macroPrefix" yaml:"macroPrefix" validate:"required"`
	StructName  string `mapstructure:"structName" yaml:"structName" validate:"required"`
	ClassName   string `mapstructure:"className" yaml:"className" validate:"required"`
}

type Report struct {
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text yaml json"`
	// File receives the report instead of stdout when set.
	File string `mapstructure:"file" yaml:"file"`
}

type Log struct {
	Level        string        `mapstructure:"level" yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	RateInterval time.Duration `mapstructure:"rateInterval" yaml:"rateInterval" validate:"min=0"`
	RateBurst    int           `mapstructure:"rateBurst" yaml:"rateBurst" validate:"min=0"`
}

type binding struct {
	key   string
	flag  string
	env   string
	def   any
	usage string
}

var bindings = []binding{
	{"headerFile", "header-file", "HEADER_FILE", "kdecl.h", "C header declaring the kernel exports"},
	{"defFile", "def-file", "DEF_FILE", "xboxkrnl.exe.def", "Module definition file mapping names to ordinals"},
	{"outputDir", "output-dir", "OUTPUT_DIR", "kernel", "Directory to generate, must not exist"},
	{"exportMacro", "export-macro", "EXPORT_MACRO", "XBAPI", "Macro marking exported declarations, empty accepts all"},
	{"defines", "defines", "DEFINES", "", "Extra macro definitions, e.g. `-DNTSYSAPI -DSTDAPI=stdcall`"},
	{"maxOrdinal", "max-ordinal", "MAX_ORDINAL", 65535, "Largest accepted ordinal"},
	{"metricsFile", "metrics-file", "METRICS_FILE", "", "Write Prometheus text format metrics to this file"},
	{"emit.macroPrefix", "macro-prefix", "MACRO_PREFIX", "KERNEL", "Prefix of the import list macros"},
	{"emit.structName", "struct-name", "STRUCT_NAME", "KernelVariables", "Name of the variable storage struct"},
	{"emit.className", "class-name", "CLASS_NAME", "Xbox", "Class qualifying the generated stubs"},
	{"report.format", "report-format", "REPORT_FORMAT", "text", "Report format: text, yaml or json"},
	{"report.file", "report-file", "REPORT_FILE", "", "Write the report to this file instead of stdout"},
	{"log.level", "log-level", "LOG_LEVEL", slog.LevelInfo.String(), "Log level"},
	{"log.rateInterval", "log-rate-interval", "LOG_RATE_INTERVAL", 10 * time.Millisecond, "Log rate limit interval"},
	{"log.rateBurst", "log-rate-burst", "LOG_RATE_BURST", 100, "Log rate burst"},
}

// RegisterFlags defines one flag per configuration key.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, b := range bindings {
		switch def := b.def.(type) {
		case string:
			fs.String(b.flag, def, b.usage)
		case int:
			fs.Int(b.flag, def, b.usage)
		case time.Duration:
			fs.Duration(b.flag, def, b.usage)
		}
	}
}

// Load resolves the configuration from defaults, the optional YAML file at path,
// KIMPORTGEN_* environment variables and changed flags, in increasing precedence.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()

	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		_ = v.BindEnv(b.key, EnvPrefix+"_"+b.env)
		if fs == nil {
			continue
		}
		if f := fs.Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return Config{}, fmt.Errorf("binding flag %s: %w", b.flag, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var ErrInvalid = errors.New("invalid config")

func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
