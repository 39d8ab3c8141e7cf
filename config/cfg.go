package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/html/charset"
	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	ExtractionConfig struct {
		ErrorRecovery    bool     `yaml:"error_recovery"`
		MaxNestingDepth  int      `yaml:"max_nesting_depth" validate:"min=1,max=256"`
		Extensions       []string `yaml:"extensions" validate:"min=1,dive,required,startswith=."`
		Markup           bool     `yaml:"markup"`
		MarkupExtensions []string `yaml:"markup_extensions" validate:"dive,required,startswith=."`
		DefaultCharset   string   `yaml:"default_charset" validate:"required"`
	}

	OutputConfig struct {
		Format    OutputFormat `yaml:"format" validate:"oneof=0 1 2 3"`
		Template  string       `yaml:"template" validate:"required_if=Format 3"`
		KeepGoing bool         `yaml:"keep_going"`
	}

	Config struct {
		Version    int              `yaml:"version" validate:"eq=1"`
		Extraction ExtractionConfig `yaml:"extraction"`
		Output     OutputConfig     `yaml:"output"`
		Logging    LoggingConfig    `yaml:"logging"`
		Reporting  ReporterConfig   `yaml:"reporting"`
	}
)

// NOTE: must match yaml field name above
const OutputTemplateFieldName TemplateFieldName = "template"

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputTemplateFieldName)),
)

// checkConfig performs validation which cannot be expressed with tags.
func checkConfig(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	if enc, _ := charset.Lookup(cfg.Extraction.DefaultCharset); enc == nil {
		sl.ReportError(cfg.Extraction.DefaultCharset, "Extraction.DefaultCharset", "DefaultCharset", "charset", "")
	}
	if !cfg.Extraction.Markup {
		return
	}
	for _, me := range cfg.Extraction.MarkupExtensions {
		for _, e := range cfg.Extraction.Extensions {
			if e == me {
				sl.ReportError(cfg.Extraction.MarkupExtensions, "Extraction.MarkupExtensions", "MarkupExtensions", "excluded_with", e)
			}
		}
	}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg, gencfg.WithAdditionalChecks(checkConfig)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
