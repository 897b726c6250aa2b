// Package config provides functionality for managing configuration options
// for the application using command-line flags, a config file and
// environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/phessophissy/POSVault/internal/governance"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/service"
	"github.com/phessophissy/POSVault/internal/vault"
)

// EnvPrefix prefixes every environment override, e.g. POSVAULT_ADDRESS.
const EnvPrefix = "POSVAULT"

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the API listening address (ip:port).
	Addr string `yaml:"address" envconfig:"ADDRESS"`
	// MetricsAddr is where /metrics is served. Empty disables it.
	MetricsAddr string `yaml:"metrics_address" envconfig:"METRICS_ADDRESS"`

	// DatabaseDSN holds the database connection string. Empty keeps state in memory.
	DatabaseDSN string `yaml:"database_dsn" envconfig:"DATABASE_DSN"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// Owner is the principal that owns the vault and both ledgers.
	Owner string `yaml:"owner" envconfig:"OWNER"`

	CACert     string `yaml:"ca_cert" envconfig:"CA_CERT"`
	CAKey      string `yaml:"ca_key" envconfig:"CA_KEY"`
	ServerCert string `yaml:"server_cert" envconfig:"SERVER_CERT"`
	ServerKey  string `yaml:"server_key" envconfig:"SERVER_KEY"`

	// Tick is the wall-clock length of one logical time unit.
	Tick time.Duration `yaml:"tick" envconfig:"TICK"`

	CycleLength       uint64                  `yaml:"cycle_length" envconfig:"CYCLE_LENGTH"`
	VotingPeriod      uint64                  `yaml:"voting_period" envconfig:"VOTING_PERIOD"`
	MinProposalTokens uint64                  `yaml:"min_proposal_tokens" envconfig:"MIN_PROPOSAL_TOKENS"`
	QuorumPercent     uint64                  `yaml:"quorum_percent" envconfig:"QUORUM_PERCENT"`
	InitialRewardRate uint32                  `yaml:"initial_reward_rate_bps" envconfig:"INITIAL_REWARD_RATE_BPS"`
	MaxRewardRate     uint32                  `yaml:"max_reward_rate_bps" envconfig:"MAX_REWARD_RATE_BPS"`
	WeightPolicy      governance.WeightPolicy `yaml:"weight_policy" envconfig:"WEIGHT_POLICY"`

	ReconcileInterval time.Duration `yaml:"reconcile_interval" envconfig:"RECONCILE_INTERVAL"`
	EventRetention    time.Duration `yaml:"event_retention" envconfig:"EVENT_RETENTION"`
	PruneInterval     time.Duration `yaml:"prune_interval" envconfig:"PRUNE_INTERVAL"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`

	// Config is the path to the config file.
	Config string `yaml:"-" ignored:"true"`
}

// Default returns the built-in configuration.
func Default() *Options {
	vp := vault.DefaultParams()
	gp := governance.DefaultParams()
	return &Options{
		Addr:              "localhost:8443",
		MetricsAddr:       "localhost:9090",
		LogLevel:          "info",
		Owner:             "owner",
		CACert:            "certs/ca.crt",
		CAKey:             "certs/ca.key",
		ServerCert:        "certs/server.crt",
		ServerKey:         "certs/server.key",
		Tick:              10 * time.Second,
		CycleLength:       vp.CycleLength,
		VotingPeriod:      gp.VotingPeriod,
		MinProposalTokens: gp.MinProposalTokens,
		QuorumPercent:     gp.QuorumPercent,
		InitialRewardRate: vault.DefaultRewardRateBps,
		MaxRewardRate:     vp.MaxRewardRateBps,
		WeightPolicy:      gp.Weight,
		ReconcileInterval: time.Minute,
		EventRetention:    30 * 24 * time.Hour,
		PruneInterval:     time.Hour,
		ShutdownTimeout:   10 * time.Second,
		Config:            "config.yaml",
	}
}

// Parse parses the command-line flags, the config file and environment
// variables. It exits the process on invalid configuration.
func Parse() *Options {
	opts, err := ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("error while loading config: %v", err)
	}
	return opts
}

// ParseArgs builds the configuration from args. Precedence, lowest first:
// defaults, config file, flags, environment.
func ParseArgs(args []string) (*Options, error) {
	opts := Default()
	flags := Default()

	fs := flag.NewFlagSet("posvault", flag.ContinueOnError)
	fs.StringVar(&flags.Addr, "a", opts.Addr, "run on ip:port server")
	fs.StringVar(&flags.MetricsAddr, "m", opts.MetricsAddr, "serve metrics on ip:port, empty to disable")
	fs.StringVar(&flags.DatabaseDSN, "d", opts.DatabaseDSN, "db address")
	fs.StringVar(&flags.LogLevel, "l", opts.LogLevel, "log level")
	fs.StringVar(&flags.Owner, "owner", opts.Owner, "owner principal")
	fs.StringVar(&flags.Config, "config", opts.Config, "path to config file")
	fs.StringVar(&flags.Config, "c", opts.Config, "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	opts.Config = flags.Config
	if configPath := os.Getenv(EnvPrefix + "_CONFIG"); configPath != "" && !set["config"] && !set["c"] {
		opts.Config = configPath
	}
	if err := opts.loadFile(set["config"] || set["c"]); err != nil {
		return nil, err
	}

	if set["a"] {
		opts.Addr = flags.Addr
	}
	if set["m"] {
		opts.MetricsAddr = flags.MetricsAddr
	}
	if set["d"] {
		opts.DatabaseDSN = flags.DatabaseDSN
	}
	if set["l"] {
		opts.LogLevel = flags.LogLevel
	}
	if set["owner"] {
		opts.Owner = flags.Owner
	}

	if err := envconfig.Process(EnvPrefix, opts); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// loadFile merges the config file into o. A missing file is an error only
// when it was named explicitly. JSON files parse as YAML.
func (o *Options) loadFile(required bool) error {
	if o.Config == "" {
		return nil
	}
	data, err := os.ReadFile(o.Config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("error while parsing config file %s: %w", o.Config, err)
	}
	return nil
}

// Validate checks the values the engine cannot start without.
func (o *Options) Validate() error {
	if o.Addr == "" {
		return errors.New("server address is required")
	}
	if o.Owner == "" {
		return errors.New("owner principal is required")
	}
	if o.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", o.Tick)
	}
	if o.CycleLength == 0 {
		return errors.New("cycle length must be positive")
	}
	if o.InitialRewardRate > o.MaxRewardRate {
		return fmt.Errorf("initial reward rate %d above max %d", o.InitialRewardRate, o.MaxRewardRate)
	}
	if o.ReconcileInterval <= 0 || o.PruneInterval <= 0 {
		return errors.New("job intervals must be positive")
	}
	return o.governanceParams().Validate()
}

func (o *Options) governanceParams() governance.Params {
	gp := governance.DefaultParams()
	gp.VotingPeriod = o.VotingPeriod
	gp.MinProposalTokens = o.MinProposalTokens
	gp.QuorumPercent = o.QuorumPercent
	gp.MaxRewardRateBps = o.MaxRewardRate
	gp.Weight = o.WeightPolicy
	return gp
}

// EngineOptions converts the configuration into engine options.
func (o *Options) EngineOptions() service.Options {
	eo := service.DefaultOptions(models.Principal(o.Owner))
	eo.InitialRewardRate = o.InitialRewardRate
	eo.Vault = vault.Params{CycleLength: o.CycleLength, MaxRewardRateBps: o.MaxRewardRate}
	eo.Governance = o.governanceParams()
	return eo
}
