package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/barnettlynn/mfctools/pkg/mfclassic"
)

// FileName is the config file looked up next to the executable.
const FileName = "config.yaml"

type ValidationMode int

const (
	// ValidationFull checks the reader and the key sources.
	ValidationFull ValidationMode = iota
	// ValidationReader only checks the reader, for tools that never
	// authenticate.
	ValidationReader
)

// Reader drivers.
const (
	DriverPCSC   = "pcsc"
	DriverLibNFC = "libnfc"
	DriverRemote = "remote"
	DriverSim    = "sim"
)

type Config struct {
	Reader  ReaderConfig  `yaml:"reader"`
	Keys    KeysConfig    `yaml:"keys"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

type ReaderConfig struct {
	Driver     string `yaml:"driver"`
	Index      *int   `yaml:"index"`
	Connstring string `yaml:"connstring"`
	RemoteAddr string `yaml:"remote_addr"`
}

type KeysConfig struct {
	DictionaryFile string `yaml:"dictionary_file"`
	StoreFile      string `yaml:"store_file"`
}

type RuntimeConfig struct {
	CardType                 string `yaml:"card_type"`
	Backdoor                 *bool  `yaml:"backdoor"`
	AcceptAnomalousHandshake *bool  `yaml:"accept_anomalous_handshake"`
}

func Load(path string) (*Config, error) {
	return LoadWithMode(path, ValidationFull)
}

func LoadWithMode(path string, mode ValidationMode) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.ValidateWithMode(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return c.ValidateWithMode(ValidationFull)
}

func (c *Config) ValidateWithMode(mode ValidationMode) error {
	if err := c.validateReader(); err != nil {
		return err
	}

	switch mode {
	case ValidationReader:
		return nil
	case ValidationFull:
		return c.validateFullMode()
	default:
		return fmt.Errorf("unsupported validation mode: %d", mode)
	}
}

func (c *Config) validateReader() error {
	switch strings.TrimSpace(c.Reader.Driver) {
	case "":
		return fmt.Errorf("config.reader.driver is required")
	case DriverPCSC:
		if c.Reader.Index == nil {
			return fmt.Errorf("config.reader.index is required")
		}
		if *c.Reader.Index < 0 {
			return fmt.Errorf("config.reader.index must be >= 0")
		}
	case DriverRemote:
		if strings.TrimSpace(c.Reader.RemoteAddr) == "" {
			return fmt.Errorf("config.reader.remote_addr is required")
		}
	case DriverLibNFC, DriverSim:
	default:
		return fmt.Errorf("config.reader.driver must be pcsc, libnfc, remote or sim, got %q", c.Reader.Driver)
	}
	return nil
}

func (c *Config) validateFullMode() error {
	if c.Keys.DictionaryFile != "" {
		if err := validateReadableFile(c.Keys.DictionaryFile, "config.keys.dictionary_file"); err != nil {
			return err
		}
	}
	if c.Keys.StoreFile != "" {
		dir := filepath.Dir(c.Keys.StoreFile)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("config.keys.store_file: directory %s does not exist", dir)
		}
	}
	if _, err := mfclassic.ParseCardType(c.Runtime.CardType); err != nil {
		return fmt.Errorf("config.runtime.card_type: %w", err)
	}
	return nil
}

// CardType returns the configured layout, 1K when unset.
func (c *Config) CardType() mfclassic.CardType {
	t, _ := mfclassic.ParseCardType(c.Runtime.CardType)
	return t
}

// Backdoor reports whether authentication uses the backdoor opcodes.
func (c *Config) Backdoor() bool {
	return c.Runtime.Backdoor != nil && *c.Runtime.Backdoor
}

// PollerConfig returns the mfclassic settings derived from the runtime
// section.
func (c *Config) PollerConfig() mfclassic.Config {
	return mfclassic.Config{
		AcceptAnomalousHandshake: c.Runtime.AcceptAnomalousHandshake != nil && *c.Runtime.AcceptAnomalousHandshake,
	}
}

// Dictionary loads the configured key dictionary, or the well-known keys
// when none is configured.
func (c *Config) Dictionary() ([]mfclassic.Key, error) {
	if c.Keys.DictionaryFile == "" {
		return mfclassic.WellKnownKeys, nil
	}
	keys, err := mfclassic.LoadKeyList(c.Keys.DictionaryFile)
	if err != nil {
		return nil, fmt.Errorf("config.keys.dictionary_file: %w", err)
	}
	return keys, nil
}

// DefaultPath returns config.yaml next to the executable, or in the
// working directory when only that one exists.
func DefaultPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), FileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	// Fallback for `go run`, where the executable is placed in a temp directory.
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, FileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Keys.DictionaryFile = resolvePath(configDir, c.Keys.DictionaryFile)
	c.Keys.StoreFile = resolvePath(configDir, c.Keys.StoreFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
