package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"emuctl/pkg/controller"
	"emuctl/pkg/meta"
	"emuctl/pkg/sniff"
)

// Config holds the complete control plane configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Docker  DockerConfig  `yaml:"docker"`
	Labels  LabelsConfig  `yaml:"labels"`
	Agent   AgentConfig   `yaml:"agent"`
	Capture CaptureConfig `yaml:"capture"`
	Link    LinkConfig    `yaml:"link"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DockerConfig selects the engine endpoint. An empty host means the
// DOCKER_* environment.
type DockerConfig struct {
	Host string `yaml:"host"`
}

type LabelsConfig struct {
	Prefix string `yaml:"prefix"`
}

// AgentConfig locates the control agent inside the nodes
type AgentConfig struct {
	Path string `yaml:"path"`
}

type CaptureConfig struct {
	Format    string `yaml:"format"`
	Interface string `yaml:"interface"`
}

// LinkConfig selects how node connectivity is read and toggled: through the
// in-node agent or from the host through netlink.
type LinkConfig struct {
	Backend string `yaml:"backend"`
}

const (
	LinkBackendAgent   = "agent"
	LinkBackendNetlink = "netlink"

	envPrefix = "EMUCTL_"
)

// DefaultConfig Default configuration values
var DefaultConfig = Config{
	Server: ServerConfig{
		Listen: "0.0.0.0:8080",
	},
	Log: LogConfig{
		Level:  "info",
		Format: "text",
	},
	Labels: LabelsConfig{
		Prefix: meta.DefaultPrefix,
	},
	Agent: AgentConfig{
		Path: controller.DefaultAgentPath,
	},
	Capture: CaptureConfig{
		Format:    sniff.FormatText,
		Interface: "any",
	},
	Link: LinkConfig{
		Backend: LinkBackendAgent,
	},
}

// LoadConfig loads configuration in order of precedence:
// 1. Environment variables (highest precedence)
// 2. Configuration file at path, when path is not empty
// 3. Default values (lowest precedence)
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

func (c *Config) loadFromEnv() {
	for key, dst := range map[string]*string{
		"LISTEN":            &c.Server.Listen,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FORMAT":        &c.Log.Format,
		"DOCKER_HOST":       &c.Docker.Host,
		"LABEL_PREFIX":      &c.Labels.Prefix,
		"AGENT_PATH":        &c.Agent.Path,
		"CAPTURE_FORMAT":    &c.Capture.Format,
		"CAPTURE_INTERFACE": &c.Capture.Interface,
		"LINK_BACKEND":      &c.Link.Backend,
	} {
		if val := os.Getenv(envPrefix + key); val != "" {
			*dst = val
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server listen address is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return errors.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Errorf("invalid log format: %s", c.Log.Format)
	}

	if !strings.HasSuffix(c.Labels.Prefix, ".") {
		return errors.Errorf("label prefix must end with '.': %s", c.Labels.Prefix)
	}
	if !strings.HasPrefix(c.Agent.Path, "/") {
		return errors.Errorf("agent path must be absolute: %s", c.Agent.Path)
	}

	if c.Capture.Format != sniff.FormatText && c.Capture.Format != sniff.FormatPcap {
		return errors.Errorf("invalid capture format: %s", c.Capture.Format)
	}
	if c.Capture.Interface == "" {
		return errors.New("capture interface is required")
	}

	if c.Link.Backend != LinkBackendAgent && c.Link.Backend != LinkBackendNetlink {
		return errors.Errorf("invalid link backend: %s", c.Link.Backend)
	}
	return nil
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
