package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/ripedome/internal/matrix"
)

type Config struct {
	Generator   string   `yaml:"generator"`
	Monitors    Monitors `yaml:"monitors"`
	Scratch     Scratch  `yaml:"scratch"`
	ControlLine string   `yaml:"control_line"`
	Timeouts    Timeouts `yaml:"timeouts"`
	CPU         *int     `yaml:"cpu"`
	Launcher    string   `yaml:"launcher"`
	Docker      Docker   `yaml:"docker"`
	Modes       []string `yaml:"modes"`
	RulesFile   string   `yaml:"rules_file"`
	Results     Results  `yaml:"results"`
}

// Monitors holds the monitor executables for the supervised modes.
type Monitors struct {
	Forward  string `yaml:"forward"`
	Backward string `yaml:"backward"`
}

// Scratch names the well-known artifact paths reused by every attempt.
type Scratch struct {
	Dir          string `yaml:"dir"`
	Marker       string `yaml:"marker"`
	PrimaryLog   string `yaml:"primary_log"`
	MonitorLog   string `yaml:"monitor_log"`
	StderrPrefix string `yaml:"stderr_prefix"`
}

type Timeouts struct {
	Attack    time.Duration `yaml:"attack"`
	Monitor   time.Duration `yaml:"monitor"`
	KillGrace time.Duration `yaml:"kill_grace"`
	Settle    time.Duration `yaml:"settle"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

type Docker struct {
	Image string `yaml:"image"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

const (
	LauncherLocal  = "local"
	LauncherDocker = "docker"
)

// Default returns the configuration used when no config file is present.
// Paths follow the layout of the RIPE64 build tree.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Generator == "" {
		cfg.Generator = "./build/{mode}_attack_gen"
	}
	if cfg.Monitors.Forward == "" {
		cfg.Monitors.Forward = "../../sidecar/sidecar-monitors/sidecfi/monitor"
	}
	if cfg.Monitors.Backward == "" {
		cfg.Monitors.Backward = "../../sidecar/sidecar-monitors/sidestack/monitor"
	}
	if cfg.Scratch.Dir == "" {
		cfg.Scratch.Dir = "/tmp/ripe-eval"
	}
	if cfg.Scratch.Marker == "" {
		cfg.Scratch.Marker = filepath.Join(cfg.Scratch.Dir, "f_xxxx")
	}
	if cfg.Scratch.PrimaryLog == "" {
		cfg.Scratch.PrimaryLog = "/tmp/ripe_log"
	}
	if cfg.Scratch.MonitorLog == "" {
		cfg.Scratch.MonitorLog = "/tmp/ripe_log_monitor"
	}
	if cfg.Scratch.StderrPrefix == "" {
		cfg.Scratch.StderrPrefix = "/tmp/ripe_log2"
	}
	if cfg.ControlLine == "" {
		cfg.ControlLine = "touch {marker}"
	}
	if cfg.Timeouts.Attack == 0 {
		cfg.Timeouts.Attack = 10 * time.Second
	}
	if cfg.Timeouts.Monitor == 0 {
		cfg.Timeouts.Monitor = 10 * time.Second
	}
	if cfg.Timeouts.KillGrace == 0 {
		cfg.Timeouts.KillGrace = 2 * time.Second
	}
	if cfg.Timeouts.Settle == 0 {
		cfg.Timeouts.Settle = time.Second
	}
	if cfg.Timeouts.Cooldown == 0 {
		cfg.Timeouts.Cooldown = 300 * time.Millisecond
	}
	if cfg.CPU == nil {
		cpu := 0
		cfg.CPU = &cpu
	}
	if cfg.Launcher == "" {
		cfg.Launcher = LauncherLocal
	}
	if len(cfg.Modes) == 0 {
		for _, m := range matrix.AllModes {
			cfg.Modes = append(cfg.Modes, string(m))
		}
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
}

func validate(cfg *Config) error {
	if !strings.Contains(cfg.Generator, "{mode}") {
		return fmt.Errorf("generator %q must contain the {mode} placeholder", cfg.Generator)
	}
	if !strings.Contains(cfg.ControlLine, "{marker}") {
		return fmt.Errorf("control_line %q must reference {marker}", cfg.ControlLine)
	}
	if cfg.Timeouts.Attack < 0 || cfg.Timeouts.Monitor < 0 || cfg.Timeouts.KillGrace < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	modes, err := cfg.ParsedModes()
	if err != nil {
		return err
	}
	switch cfg.Launcher {
	case LauncherLocal:
	case LauncherDocker:
		if cfg.Docker.Image == "" {
			return fmt.Errorf("docker launcher requires docker.image")
		}
		for _, m := range modes {
			if m.Supervised() {
				return fmt.Errorf("mode %s is monitor-supervised and cannot use the docker launcher", m)
			}
		}
	default:
		return fmt.Errorf("unknown launcher %q (want local or docker)", cfg.Launcher)
	}
	return nil
}

// ParsedModes returns the configured modes in configuration order.
func (c *Config) ParsedModes() ([]matrix.Mode, error) {
	var modes []matrix.Mode
	for _, name := range c.Modes {
		m, err := matrix.ParseMode(name)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

// GeneratorFor resolves the attack generator binary built for mode.
func (c *Config) GeneratorFor(mode matrix.Mode) string {
	return strings.ReplaceAll(c.Generator, "{mode}", string(mode))
}

// MonitorFor returns the monitor executable for a supervised mode, or "" if
// the mode runs unsupervised.
func (c *Config) MonitorFor(mode matrix.Mode) string {
	if !mode.Supervised() {
		return ""
	}
	if mode.Edge() == matrix.ForwardEdge {
		return c.Monitors.Forward
	}
	return c.Monitors.Backward
}

// Control returns the line fed to the generator on stdin.
func (c *Config) Control() string {
	return strings.ReplaceAll(c.ControlLine, "{marker}", c.Scratch.Marker)
}

// PinnedCPU returns the CPU the generator is pinned to and whether pinning
// is enabled.
func (c *Config) PinnedCPU() (int, bool) {
	if c.CPU == nil || *c.CPU < 0 {
		return 0, false
	}
	return *c.CPU, true
}
