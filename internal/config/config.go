package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr = "127.0.0.1:50051"
	// DefaultMetricsAddr serves the Prometheus endpoint. Empty disables it.
	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultLanguage    = "auto"
	DefaultLogLevel    = "info"
	DefaultResultMode  = "streaming"
)

// Config captures bootstrap configuration extracted from a YAML file, an
// injected JSON payload (`NUPI_MODULE_CONFIG`) and environment variables.
type Config struct {
	ListenAddr  string `yaml:"listen_addr" json:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	ModelPath   string `yaml:"model_path" json:"model_path"`
	Language    string `yaml:"language" json:"language"`
	LogLevel    string `yaml:"log_level" json:"log_level"`

	// Threads is the default requested thread count. 0 lets the budget pick.
	Threads int `yaml:"threads" json:"threads"`
	// MaxSegmentLength is the default maximum segment length in characters.
	// 0 means unlimited, 1 forces one token per segment.
	MaxSegmentLength int `yaml:"max_segment_length" json:"max_segment_length"`
	// ResultMode is one of streaming, aggregate or timestamps.
	ResultMode     string `yaml:"result_mode" json:"result_mode"`
	TimestampComma bool   `yaml:"timestamp_comma" json:"timestamp_comma"`
	UseStubEngine  bool   `yaml:"use_stub_engine" json:"use_stub_engine"`
	// HardwareConcurrency overrides the detected CPU count when > 0.
	HardwareConcurrency int `yaml:"hardware_concurrency" json:"hardware_concurrency"`

	UseGPU         bool `yaml:"use_gpu" json:"use_gpu"`
	FlashAttention bool `yaml:"flash_attention" json:"flash_attention"`
	// BeamSize selects beam search when > 1. 0 keeps greedy sampling.
	BeamSize int `yaml:"beam_size" json:"beam_size"`
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("config: listen address is required"))
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log_level %q is invalid; valid values: debug, info, warn, error", c.LogLevel))
	}
	if c.ResultMode == "" {
		c.ResultMode = DefaultResultMode
	}
	c.ResultMode = strings.ToLower(c.ResultMode)
	switch c.ResultMode {
	case "streaming", "aggregate", "timestamps":
	default:
		errs = append(errs, fmt.Errorf("config: result_mode %q is invalid; valid values: streaming, aggregate, timestamps", c.ResultMode))
	}
	if c.Threads < 0 {
		errs = append(errs, fmt.Errorf("config: threads must be >= 0, got %d", c.Threads))
	}
	if c.MaxSegmentLength < 0 {
		errs = append(errs, fmt.Errorf("config: max_segment_length must be >= 0, got %d", c.MaxSegmentLength))
	}
	if c.HardwareConcurrency < 0 {
		errs = append(errs, fmt.Errorf("config: hardware_concurrency must be >= 0, got %d", c.HardwareConcurrency))
	}
	if c.BeamSize < 0 {
		errs = append(errs, fmt.Errorf("config: beam_size must be >= 0, got %d", c.BeamSize))
	}
	return errors.Join(errs...)
}
