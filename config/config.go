// Package config loads driver settings from flags, TETRON_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyDebug          = "debug"
	KeyConfigFile     = "config"
	KeyNatsURL        = "nats-url"
	KeyCommandSubject = "command-subject"
	KeyNotifySubject  = "notify-subject"
	KeyDeadline       = "deadline"
	KeySearchWidth    = "search-width"
	KeyEngine         = "engine"
	KeyEngineScript   = "engine-script"
	KeyInboxSize      = "inbox-size"
	KeyRequestTimeout = "request-timeout"
	KeyRetryAttempts  = "retry-attempts"
	KeyRandomSeed     = "random-seed"
)

const EnvPrefix = "TETRON"

// Engine backends selectable with --engine.
const (
	EngineScripted = "scripted"
	EngineLua      = "lua"
	EngineRandom   = "random"
)

type Config struct {
	Debug bool

	NatsURL        string
	CommandSubject string
	NotifySubject  string

	// Deadline is the default thinking budget of a run.
	Deadline    time.Duration
	SearchWidth int
	InboxSize   int

	Engine       string
	EngineScript string
	RandomSeed   string

	RequestTimeout time.Duration
	RetryAttempts  uint
}

func DefaultConfig() *Config {
	return &Config{
		NatsURL:        "nats://localhost:4222",
		CommandSubject: "tetron.cmd",
		NotifySubject:  "tetron.notify",
		Deadline:       1000 * time.Millisecond,
		SearchWidth:    runtime.NumCPU(),
		InboxSize:      16,
		Engine:         EngineRandom,
		RequestTimeout: 10 * time.Second,
		RetryAttempts:  5,
	}
}

// AddFlags registers every setting on fs, with the defaults as flag
// defaults.
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.Bool(KeyDebug, d.Debug, "debug logging on")
	fs.String(KeyConfigFile, "", "path to a YAML config file")
	fs.String(KeyNatsURL, d.NatsURL, "NATS server URL")
	fs.String(KeyCommandSubject, d.CommandSubject, "subject commands are received on")
	fs.String(KeyNotifySubject, d.NotifySubject, "subject notifications are published on")
	fs.Duration(KeyDeadline, d.Deadline, "default thinking budget per run")
	fs.Int(KeySearchWidth, d.SearchWidth, "search width handed to the engine on create")
	fs.Int(KeyInboxSize, d.InboxSize, "number of commands buffered by the dispatcher")
	fs.String(KeyEngine, d.Engine, "engine backend: scripted, lua or random")
	fs.String(KeyEngineScript, d.EngineScript, "script for the scripted (YAML) or lua engine")
	fs.String(KeyRandomSeed, d.RandomSeed, "seed for the random engine and benchmark (empty means random)")
	fs.Duration(KeyRequestTimeout, d.RequestTimeout, "client request timeout")
	fs.Uint(KeyRetryAttempts, d.RetryAttempts, "client attempts on busy or not-ready")
}

// New builds a viper instance over fs and reads the config file if one is
// named.
func New(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return v, nil
}

// FromViper fills a Config. Keys that are set nowhere keep their defaults.
func FromViper(v *viper.Viper) (*Config, error) {
	c := DefaultConfig()
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setString(KeyNatsURL, &c.NatsURL)
	setString(KeyCommandSubject, &c.CommandSubject)
	setString(KeyNotifySubject, &c.NotifySubject)
	setString(KeyEngine, &c.Engine)
	setString(KeyEngineScript, &c.EngineScript)
	setString(KeyRandomSeed, &c.RandomSeed)
	if v.IsSet(KeyDebug) {
		c.Debug = v.GetBool(KeyDebug)
	}
	if v.IsSet(KeyDeadline) {
		c.Deadline = v.GetDuration(KeyDeadline)
	}
	if v.IsSet(KeySearchWidth) {
		c.SearchWidth = v.GetInt(KeySearchWidth)
	}
	if v.IsSet(KeyInboxSize) {
		c.InboxSize = v.GetInt(KeyInboxSize)
	}
	if v.IsSet(KeyRequestTimeout) {
		c.RequestTimeout = v.GetDuration(KeyRequestTimeout)
	}
	if v.IsSet(KeyRetryAttempts) {
		c.RetryAttempts = v.GetUint(KeyRetryAttempts)
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	switch c.Engine {
	case EngineScripted, EngineLua:
		if c.EngineScript == "" {
			return fmt.Errorf("engine %s needs --%s", c.Engine, KeyEngineScript)
		}
	case EngineRandom:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.Deadline < 0 {
		return fmt.Errorf("negative deadline %v", c.Deadline)
	}
	if c.SearchWidth <= 0 {
		return fmt.Errorf("search width must be positive, got %d", c.SearchWidth)
	}
	return nil
}

// Load parses args into c.
func (c *Config) Load(args []string) error {
	fs := pflag.NewFlagSet("tetron", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, err := New(fs)
	if err != nil {
		return err
	}
	loaded, err := FromViper(v)
	if err != nil {
		return err
	}
	*c = *loaded
	return nil
}
