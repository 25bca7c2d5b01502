// Package config loads the weave YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	VerifierKeccak = "keccak"
	VerifierOpen   = "open"
)

type Limits struct {
	MaxUsernameLen    int `yaml:"maxUsernameLen"`
	MaxBioLen         int `yaml:"maxBioLen"`
	MaxContentHashLen int `yaml:"maxContentHashLen"`
}

type Verifier struct {
	// Mode is "keccak" (proof must equal the keccak seal of the handle)
	// or "open" (any well-formed proof passes; development only).
	Mode   string `yaml:"mode"`
	Domain string `yaml:"domain"`
}

type AMQP struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routingKey"`
}

type Content struct {
	ChunkSize int  `yaml:"chunkSize"`
	Rabin     bool `yaml:"rabin"`
}

type Config struct {
	DataDir             string        `yaml:"dataDir"`
	InMemory            bool          `yaml:"inMemory"`
	MinimumFreeGB       int           `yaml:"minimumFreeGB"`
	LogLevel            string        `yaml:"logLevel"`
	Limits              Limits        `yaml:"limits"`
	RequireKnownContent bool          `yaml:"requireKnownContent"`
	Verifier            Verifier      `yaml:"verifier"`
	AMQP                AMQP          `yaml:"amqp"`
	Content             Content       `yaml:"content"`
	GCInterval          time.Duration `yaml:"gcInterval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

// Load reads path, fills defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" && !c.InMemory {
		c.DataDir = "./weave-data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Limits.MaxUsernameLen == 0 {
		c.Limits.MaxUsernameLen = 64
	}
	if c.Limits.MaxBioLen == 0 {
		c.Limits.MaxBioLen = 512
	}
	if c.Limits.MaxContentHashLen == 0 {
		c.Limits.MaxContentHashLen = 256
	}
	if c.Verifier.Mode == "" {
		c.Verifier.Mode = VerifierKeccak
	}
	if c.Verifier.Domain == "" {
		c.Verifier.Domain = "weave"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "weave.events"
	}
	if c.AMQP.RoutingKey == "" {
		c.AMQP.RoutingKey = "weave"
	}
	if c.Content.ChunkSize == 0 {
		c.Content.ChunkSize = 256 * 1024
	}
	if c.GCInterval == 0 {
		c.GCInterval = 10 * time.Minute
	}
}

func (c Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("logLevel: %w", err))
	}
	if c.MinimumFreeGB < 0 {
		errs = append(errs, errors.New("minimumFreeGB must not be negative"))
	}
	if c.Limits.MaxUsernameLen < 0 || c.Limits.MaxBioLen < 0 || c.Limits.MaxContentHashLen < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	switch c.Verifier.Mode {
	case VerifierKeccak, VerifierOpen:
	default:
		errs = append(errs, fmt.Errorf("verifier.mode %q: want %q or %q", c.Verifier.Mode, VerifierKeccak, VerifierOpen))
	}
	if c.Content.ChunkSize < 0 {
		errs = append(errs, errors.New("content.chunkSize must not be negative"))
	}
	if c.GCInterval < 0 {
		errs = append(errs, errors.New("gcInterval must not be negative"))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
