package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AndreasThinks/nodeice-board/internal/command"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "nodeice.yaml"

// bodyShare is the fraction of the transport payload a post body may use.
// The rest is left for reply framing such as "Post #123: " and previews.
const bodyShare = 0.8

// Config is the complete daemon configuration.
type Config struct {
	Board           BoardConfig     `yaml:"board"`
	Database        string          `yaml:"database"`
	LockFile        string          `yaml:"lock_file"`
	Transport       TransportConfig `yaml:"transport"`
	Posts           PostsConfig     `yaml:"posts"`
	Sweep           SweepConfig     `yaml:"sweep"`
	Guard           GuardConfig     `yaml:"guard"`
	Store           StoreConfig     `yaml:"store"`
	Notify          NotifyConfig    `yaml:"notify"`
	Metrics         MetricsConfig   `yaml:"metrics"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"`

	// Announce broadcasts an online message when the daemon starts.
	Announce bool `yaml:"announce"`
}

// BoardConfig names the board.
type BoardConfig struct {
	Name    string `yaml:"name"`
	InfoURL string `yaml:"info_url"`
}

// TransportConfig selects how the daemon reaches the radio bridge.
type TransportConfig struct {
	// Kind is "stdio", "tcp" or "unix".
	Kind    string `yaml:"kind"`
	Address string `yaml:"address"`

	// MaxPayload is the largest text, in bytes, the radio accepts.
	MaxPayload int `yaml:"max_payload"`

	// ConnectRetries and RetryDelay tune reconnection to a socket bridge.
	ConnectRetries int      `yaml:"connect_retries"`
	RetryDelay     Duration `yaml:"retry_delay"`
}

// PostsConfig bounds content.
type PostsConfig struct {
	Lifetime     Duration `yaml:"lifetime"`
	MaxBody      int      `yaml:"max_body"`
	ListDefault  int      `yaml:"list_default"`
	ListMax      int      `yaml:"list_max"`
	ViewComments int      `yaml:"view_comments"`
}

// SweepConfig schedules the expiration sweeper.
type SweepConfig struct {
	Interval Duration `yaml:"interval"`
}

// GuardConfig tunes the instance guard.
type GuardConfig struct {
	GracePeriod    Duration `yaml:"grace_period"`
	OrphanPatterns []string `yaml:"orphan_patterns"`
}

// StoreConfig tunes retries of busy transactions.
type StoreConfig struct {
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryDelay    Duration `yaml:"retry_delay"`
}

// NotifyConfig bounds notification fan-out.
type NotifyConfig struct {
	Workers int `yaml:"workers"`
}

// MetricsConfig enables the Prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses strings such as "168h" or "30s".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Board: BoardConfig{
			Name: "Nodeice Board",
		},
		Database: "nodeice_board.db",
		Transport: TransportConfig{
			Kind:           "stdio",
			MaxPayload:     200,
			ConnectRetries: 5,
			RetryDelay:     Duration{time.Second},
		},
		Posts: PostsConfig{
			Lifetime:     Duration{7 * 24 * time.Hour},
			ListDefault:  5,
			ListMax:      20,
			ViewComments: 5,
		},
		Sweep: SweepConfig{
			Interval: Duration{6 * time.Hour},
		},
		Guard: GuardConfig{
			GracePeriod: Duration{5 * time.Second},
		},
		Store: StoreConfig{
			RetryAttempts: 3,
			RetryDelay:    Duration{50 * time.Millisecond},
		},
		Notify: NotifyConfig{
			Workers: 4,
		},
		ShutdownTimeout: Duration{10 * time.Second},
		Announce:        true,
	}
}

// Load reads the configuration at path over the defaults.
//
// A missing file is not an error: the defaults are returned and a warning
// is logged. Schema violations and cross-field errors are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	slog.Info("loaded configuration", "path", path)
	return cfg, nil
}

// Parse validates data against the schema and decodes it over cfg.
func Parse(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if err := checkSchema(raw); err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}

	return cfg.Validate()
}

// Validate applies cross-field rules and fills derived values.
func (c *Config) Validate() error {
	if c.Posts.MaxBody == 0 {
		c.Posts.MaxBody = int(float64(c.Transport.MaxPayload) * bodyShare)
	}

	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if limit := int(float64(c.Transport.MaxPayload) * bodyShare); c.Posts.MaxBody > limit {
		errs = append(errs, fmt.Errorf("posts.max_body %d exceeds %d (80%% of transport.max_payload %d)",
			c.Posts.MaxBody, limit, c.Transport.MaxPayload))
	}
	if c.Posts.Lifetime.Duration <= 0 {
		errs = append(errs, errors.New("posts.lifetime must be positive"))
	}
	if c.Sweep.Interval.Duration <= 0 {
		errs = append(errs, errors.New("sweep.interval must be positive"))
	}
	if c.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if c.Store.RetryDelay.Duration <= 0 {
		errs = append(errs, errors.New("store.retry_delay must be positive"))
	}
	if c.Posts.ListDefault > c.Posts.ListMax {
		errs = append(errs, fmt.Errorf("posts.list_default %d exceeds posts.list_max %d",
			c.Posts.ListDefault, c.Posts.ListMax))
	}
	if c.Transport.Kind != "stdio" && c.Transport.Address == "" {
		errs = append(errs, fmt.Errorf("transport.address is required for kind %q", c.Transport.Kind))
	}
	return errors.Join(errs...)
}

// LockPath returns the instance guard lock file path.
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return c.Database + ".lock"
}

// Limits returns the parser limits.
func (c *Config) Limits() command.Limits {
	return command.Limits{
		MaxBody:     c.Posts.MaxBody,
		ListDefault: c.Posts.ListDefault,
		ListMax:     c.Posts.ListMax,
	}
}
