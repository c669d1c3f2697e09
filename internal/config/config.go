package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/relay/internal/filter"
	"github.com/bamsammich/relay/internal/model"
	"github.com/bamsammich/relay/internal/sink"
	"github.com/bamsammich/relay/internal/transport"
)

// Sink kinds.
const (
	SinkLocal = "local"
	SinkSFTP  = "sftp"
	SinkGCS   = "gcs"
)

// Tracker kinds.
const (
	TrackerMemory   = "memory"
	TrackerSQLite   = "sqlite"
	TrackerPostgres = "postgres"
)

// Config represents the relay configuration file.
type Config struct {
	Sink       SinkConfig     `toml:"sink"`
	Tracker    TrackerConfig  `toml:"tracker"`
	SSH        SSHConfig      `toml:"ssh"`
	Defaults   DefaultsConfig `toml:"defaults"`
	FeedTables []FeedConfig   `toml:"feed"`
	// dir is the directory of the loaded file; relative filter files
	// resolve against it.
	dir string
}

type SinkConfig struct {
	Kind  string          `toml:"kind"`
	Local LocalSinkConfig `toml:"local"`
	SFTP  SFTPSinkConfig  `toml:"sftp"`
	GCS   GCSSinkConfig   `toml:"gcs"`
}

type LocalSinkConfig struct {
	Path       string `toml:"path"`
	BufferSize int    `toml:"buffer_size"`
}

type SFTPSinkConfig struct {
	// URI is sftp://[user@]host[:port]/base/path.
	URI string `toml:"uri"`
}

type GCSSinkConfig struct {
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Endpoint  string `toml:"endpoint"`
	ChunkSize int    `toml:"chunk_size"`
	Anonymous bool   `toml:"anonymous"`
}

type TrackerConfig struct {
	Kind string `toml:"kind"`
	// Path is the SQLite database file.
	Path string `toml:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `toml:"dsn"`
}

// SSHConfig applies to every sftp:// source and the sftp sink.
type SSHConfig struct {
	KeyFile         string `toml:"key_file"`
	Password        string `toml:"password"`
	KnownHosts      string `toml:"known_hosts"`
	Timeout         string `toml:"timeout"`
	Port            int    `toml:"port"`
	InsecureHostKey bool   `toml:"insecure_host_key"`
}

// DefaultsConfig holds defaults for run flags.
type DefaultsConfig struct {
	Verify  *bool   `toml:"verify"`
	Workers *int    `toml:"workers"`
	BWLimit *string `toml:"bwlimit"`
}

// FeedConfig is one [[feed]] table.
type FeedConfig struct {
	Metadata          map[string]any `toml:"metadata"`
	Active            *bool          `toml:"active"`
	ID                string         `toml:"id"`
	Source            string         `toml:"source"`
	FilterFile        string         `toml:"filter_file"`
	DestinationPrefix string         `toml:"destination_prefix"`
	Include           []string       `toml:"include"`
	Exclude           []string       `toml:"exclude"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "relay", "config.toml")
}

// Load reads the config file from the XDG path. A missing file yields the
// defaults with no feeds.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return withDefaults(Config{}), nil
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return withDefaults(Config{}), nil
	}
	return cfg, err
}

// LoadFile reads and validates the config at path. Unknown keys are
// rejected.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("%w: %s: %w", model.ErrInvalidConfiguration, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: %s: unknown keys: %s",
			model.ErrInvalidConfiguration, path, strings.Join(keys, ", "))
	}
	cfg.dir = filepath.Dir(path)
	cfg = withDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Sink.Kind == "" {
		cfg.Sink.Kind = SinkLocal
	}
	if cfg.Sink.Local.Path == "" {
		cfg.Sink.Local.Path = sink.DefaultLocalPath
	}
	if cfg.Sink.Local.BufferSize == 0 {
		cfg.Sink.Local.BufferSize = sink.DefaultBufferSize
	}
	if cfg.Tracker.Kind == "" {
		cfg.Tracker.Kind = TrackerMemory
	}
	return cfg
}

// Validate checks kinds, required settings and feed ids.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidConfiguration}, args...)...))
	}

	switch c.Sink.Kind {
	case SinkLocal:
		if c.Sink.Local.BufferSize < 0 {
			invalid("sink.local.buffer_size must be positive")
		}
	case SinkSFTP:
		loc, err := transport.ParseLocation(c.Sink.SFTP.URI)
		if err != nil || loc.Scheme != transport.SchemeSFTP {
			invalid("sink.sftp.uri must be an sftp:// uri, got %q", c.Sink.SFTP.URI)
		}
	case SinkGCS:
		if c.Sink.GCS.Bucket == "" {
			invalid("sink.gcs.bucket is required")
		}
	default:
		invalid("unknown sink kind %q", c.Sink.Kind)
	}

	switch c.Tracker.Kind {
	case TrackerMemory:
	case TrackerSQLite:
		if c.Tracker.Path == "" {
			invalid("tracker.path is required for sqlite")
		}
	case TrackerPostgres:
		if c.Tracker.DSN == "" {
			invalid("tracker.dsn is required for postgres")
		}
	default:
		invalid("unknown tracker kind %q", c.Tracker.Kind)
	}

	if c.SSH.Timeout != "" {
		if _, err := time.ParseDuration(c.SSH.Timeout); err != nil {
			invalid("ssh.timeout: %v", err)
		}
	}
	if c.Defaults.BWLimit != nil {
		if _, err := filter.ParseSize(*c.Defaults.BWLimit); err != nil {
			invalid("defaults.bwlimit: %v", err)
		}
	}

	seen := make(map[string]bool, len(c.FeedTables))
	for i, f := range c.FeedTables {
		id := strings.TrimSpace(f.ID)
		switch {
		case id == "":
			invalid("feed #%d: id cannot be blank", i+1)
		case seen[id]:
			invalid("duplicate feed id %q", id)
		}
		seen[id] = true
		if strings.TrimSpace(f.Source) == "" {
			invalid("feed %q: source cannot be blank", f.ID)
		} else if _, err := transport.ParseLocation(f.Source); err != nil {
			invalid("feed %q: %v", f.ID, err)
		}
	}
	return errors.Join(errs...)
}

// Feeds converts the [[feed]] tables to domain feeds. Patterns from a
// filter_file are appended after the inline include/exclude lists.
func (c Config) Feeds() ([]model.Feed, error) {
	feeds := make([]model.Feed, 0, len(c.FeedTables))
	for _, fc := range c.FeedTables {
		includes := slices.Clone(fc.Include)
		excludes := slices.Clone(fc.Exclude)
		if fc.FilterFile != "" {
			path := fc.FilterFile
			if !filepath.IsAbs(path) && c.dir != "" {
				path = filepath.Join(c.dir, path)
			}
			rules, err := filter.LoadRules(path)
			if err != nil {
				return nil, fmt.Errorf("%w: feed %s: %w", model.ErrInvalidConfiguration, fc.ID, err)
			}
			includes = append(includes, rules.Includes...)
			excludes = append(excludes, rules.Excludes...)
		}

		active := true
		if fc.Active != nil {
			active = *fc.Active
		}
		f, err := model.NewFeed(model.FeedSpec{
			ID:                strings.TrimSpace(fc.ID),
			SourceURI:         fc.Source,
			DestinationPrefix: fc.DestinationPrefix,
			IncludePatterns:   includes,
			ExcludePatterns:   excludes,
			Active:            active,
			Metadata:          fc.Metadata,
		})
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

// Feed returns the feed with the given id.
func (c Config) Feed(id string) (model.Feed, error) {
	feeds, err := c.Feeds()
	if err != nil {
		return model.Feed{}, err
	}
	for _, f := range feeds {
		if f.ID() == id {
			return f, nil
		}
	}
	return model.Feed{}, fmt.Errorf("%w: no feed %q", model.ErrInvalidConfiguration, id)
}

// BandwidthLimit returns defaults.bwlimit in bytes per second, or 0.
func (c Config) BandwidthLimit() (int64, error) {
	if c.Defaults.BWLimit == nil || *c.Defaults.BWLimit == "" {
		return 0, nil
	}
	return filter.ParseSize(*c.Defaults.BWLimit)
}

// SSHOpts converts the [ssh] table for transport.DialSSH.
func (c Config) SSHOpts() transport.SSHOpts {
	opts := transport.SSHOpts{
		KeyFile:         c.SSH.KeyFile,
		Password:        c.SSH.Password,
		KnownHostsFile:  c.SSH.KnownHosts,
		Port:            c.SSH.Port,
		InsecureHostKey: c.SSH.InsecureHostKey,
	}
	if d, err := time.ParseDuration(c.SSH.Timeout); err == nil {
		opts.Timeout = d
	}
	return opts
}
