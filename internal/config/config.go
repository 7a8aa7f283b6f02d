// Package config resolves tasker settings from, in increasing priority:
// built-in defaults, the TOML config file, a .env file, environment
// variables and command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/amirbrooks/tasker-today/internal/logging"
	"github.com/amirbrooks/tasker-today/internal/messages"
	"github.com/amirbrooks/tasker-today/internal/store"
)

const (
	DefaultBackend   = store.BackendDocstore
	DefaultLang      = messages.LanguageEn
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
	DefaultDBName    = "tasker.db"
	FileName         = "config.toml"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Root      string `toml:"root" json:"root"`
	Backend   string `toml:"backend" json:"backend"`
	DBPath    string `toml:"db_path" json:"db_path"`
	Lang      string `toml:"lang" json:"lang"`
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// Source names where a setting came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// Overrides holds values given on the command line. Empty fields are unset.
type Overrides struct {
	Root      string
	Backend   string
	DBPath    string
	Lang      string
	LogLevel  string
	LogFormat string
}

// Loaded is a resolved config plus the file it was read from and the source
// of every key.
type Loaded struct {
	Config
	File    string
	Sources map[string]Source
}

// Keys lists the settable keys in display order.
func Keys() []string {
	return []string{"root", "backend", "db_path", "lang", "log_level", "log_format"}
}

var envKeys = map[string]string{
	"root":       "TASKER_ROOT",
	"backend":    "TASKER_BACKEND",
	"db_path":    "TASKER_DB",
	"lang":       "TASKER_LANG",
	"log_level":  "TASKER_LOG_LEVEL",
	"log_format": "TASKER_LOG_FORMAT",
}

func Default() Config {
	root := ".tasker"
	if home, _ := os.UserHomeDir(); home != "" {
		root = filepath.Join(home, ".tasker")
	}
	return Config{
		Root:      root,
		Backend:   DefaultBackend,
		Lang:      DefaultLang,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Load resolves the effective config. A .env file in the working directory
// is read first; it never overrides variables already in the environment.
func Load(flags Overrides) (*Loaded, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	sources := map[string]Source{}
	for _, k := range Keys() {
		sources[k] = SourceDefault
	}

	file := configFile(flags)
	if err := loadFile(&cfg, file, sources); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", file, err)
	}

	for _, k := range Keys() {
		if v := strings.TrimSpace(os.Getenv(envKeys[k])); v != "" {
			_ = cfg.set(k, v)
			sources[k] = SourceEnv
		}
	}

	for k, v := range flags.values() {
		if strings.TrimSpace(v) != "" {
			_ = cfg.set(k, strings.TrimSpace(v))
			sources[k] = SourceFlag
		}
	}

	cfg.finalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, File: file, Sources: sources}, nil
}

// configFile picks TASKER_CONFIG, or config.toml under the root given by
// flag, environment or default, in that order.
func configFile(flags Overrides) string {
	if p := strings.TrimSpace(os.Getenv("TASKER_CONFIG")); p != "" {
		return store.ExpandHome(p)
	}
	root := Default().Root
	if v := strings.TrimSpace(os.Getenv(envKeys["root"])); v != "" {
		root = v
	}
	if v := strings.TrimSpace(flags.Root); v != "" {
		root = v
	}
	return filepath.Join(store.ExpandHome(root), FileName)
}

func loadFile(cfg *Config, path string, sources map[string]Source) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var fileCfg Config
	md, err := toml.DecodeFile(path, &fileCfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	fileValues := fileCfg.values()
	for _, k := range Keys() {
		if md.IsDefined(k) {
			_ = cfg.set(k, fileValues[k])
			sources[k] = SourceFile
		}
	}
	return nil
}

func (c *Config) finalize() {
	c.Root = store.ExpandHome(c.Root)
	c.Backend = strings.ToLower(c.Backend)
	c.Lang = strings.ToLower(c.Lang)
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = filepath.Join(c.Root, DefaultDBName)
	}
	c.DBPath = store.ExpandHome(c.DBPath)
}

// Validate rejects unknown backends, languages, levels and formats.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("%w: root is required", ErrInvalid)
	}
	switch strings.ToLower(c.Backend) {
	case store.BackendDocstore, store.BackendSQLite, store.BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q (docstore|sqlite|memory)", ErrInvalid, c.Backend)
	}
	if !messages.Supported(c.Lang) {
		return fmt.Errorf("%w: unsupported lang %q (en|zh)", ErrInvalid, c.Lang)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.LogLevel)
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("%w: unknown log format %q (text|json|logfmt)", ErrInvalid, c.LogFormat)
	}
	return nil
}

// Store returns the store settings for this config.
func (c Config) Store() store.Config {
	return store.Config{Backend: c.Backend, Root: c.Root, DBPath: c.DBPath}
}

func (c Config) Logging() logging.Options {
	opts := logging.DefaultOptions()
	opts.Level = c.LogLevel
	opts.Format = c.LogFormat
	return opts
}

// Get returns the value of key.
func (c Config) Get(key string) (string, bool) {
	v, ok := c.values()[key]
	return v, ok
}

func (c Config) values() map[string]string {
	return map[string]string{
		"root":       c.Root,
		"backend":    c.Backend,
		"db_path":    c.DBPath,
		"lang":       c.Lang,
		"log_level":  c.LogLevel,
		"log_format": c.LogFormat,
	}
}

func (o Overrides) values() map[string]string {
	return Config(o).values()
}

func (c *Config) set(key, value string) error {
	switch key {
	case "root":
		c.Root = value
	case "backend":
		c.Backend = value
	case "db_path":
		c.DBPath = value
	case "lang":
		c.Lang = value
	case "log_level":
		c.LogLevel = value
	case "log_format":
		c.LogFormat = value
	default:
		return fmt.Errorf("%w: unknown key %q (keys: %s)", ErrInvalid, key, strings.Join(Keys(), ", "))
	}
	return nil
}

// SetInFile writes key=value into the TOML file at path, keeping the other
// keys it already holds. The resulting file must still validate.
func SetInFile(path, key, value string) error {
	var fileCfg Config
	defined := map[string]bool{}
	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, &fileCfg)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		for _, k := range Keys() {
			defined[k] = md.IsDefined(k)
		}
	}
	if err := fileCfg.set(key, strings.TrimSpace(value)); err != nil {
		return err
	}
	defined[key] = true

	check := Default()
	values := fileCfg.values()
	for k, ok := range defined {
		if ok {
			_ = check.set(k, values[k])
		}
	}
	check.finalize()
	if err := check.Validate(); err != nil {
		return err
	}

	out := map[string]string{}
	for k, ok := range defined {
		if ok {
			out[k] = values[k]
		}
	}
	return writeFile(path, out)
}

// writeFile encodes values as a flat TOML table; the encoder sorts keys.
func writeFile(path string, values map[string]string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(values); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
