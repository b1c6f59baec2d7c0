// Package config provides configuration management for the NACC node and
// orchestrator binaries.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// StringSlice is a custom type that can unmarshal from either a string or []string.
type StringSlice []string

// UnmarshalTOML implements toml.Unmarshaler for flexible config parsing.
func (s *StringSlice) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*s = []string{v}
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in array, got %T", item)
			}
			result[i] = str
		}
		*s = result
	default:
		return fmt.Errorf("expected string or array, got %T", data)
	}
	return nil
}

// LoggingConfig contains logging settings, shared by both binaries.
type LoggingConfig struct {
	Level      string      `toml:"level"`
	Format     string      `toml:"format"`
	Output     StringSlice `toml:"output"`
	TimeFormat string      `toml:"time_format"`
	MaxSizeMB  int         `toml:"max_size_mb"`
	MaxBackups int         `toml:"max_backups"`
	MaxAgeDays int         `toml:"max_age_days"`
	Compress   bool        `toml:"compress"`
}

func defaultLogging() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "text",
		Output:     StringSlice{"file"},
		TimeFormat: "15:04:05.000",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// SecurityConfig contains transport security settings, shared by both binaries.
type SecurityConfig struct {
	TLSEnabled  bool   `toml:"tls_enabled"`
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
	CORSEnabled bool   `toml:"cors_enabled"`
}

// ---------------------------------------------------------------------
// Node config
// ---------------------------------------------------------------------

// NodeConfig is the Node Tool Server's configuration surface.
type NodeConfig struct {
	Service  NodeServiceConfig `toml:"service"`
	Logging  LoggingConfig     `toml:"logging"`
	Security SecurityConfig    `toml:"security"`
}

// NodeServiceConfig describes one spoke: its identity, confinement root,
// and the commands it will run on the orchestrator's behalf.
type NodeServiceConfig struct {
	Host            string            `toml:"host"`
	Port            int               `toml:"port"`
	DataDir         string            `toml:"data_dir"`
	PIDFile         string            `toml:"pid_file"`
	ShutdownTimeout int               `toml:"shutdown_timeout_seconds"`
	MaxRequestSize  int64             `toml:"max_request_size_bytes"`

	NodeID          string            `toml:"node_id"`
	RootDir         string            `toml:"root_dir"`
	AllowedCommands StringSlice       `toml:"allowed_commands"`
	SyncTargets     map[string]string `toml:"sync_targets"`
	Tags            StringSlice       `toml:"tags"`
	Description     string            `toml:"description"`
	BearerToken     string            `toml:"bearer_token"`
}

// DefaultNodeConfig returns the default node configuration.
// Environment variables NACC_NODE_HOST and NACC_NODE_PORT can override defaults.
func DefaultNodeConfig() *NodeConfig {
	dataDir := defaultDataDir("nacc-node")

	host := "0.0.0.0"
	if envHost := os.Getenv("NACC_NODE_HOST"); envHost != "" {
		host = envHost
	}
	port := 8081
	if envPort := os.Getenv("NACC_NODE_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}

	return &NodeConfig{
		Service: NodeServiceConfig{
			Host:            host,
			Port:            port,
			DataDir:         dataDir,
			PIDFile:         filepath.Join(dataDir, "nacc-node.pid"),
			ShutdownTimeout: 30,
			MaxRequestSize:  10 * 1024 * 1024,
			RootDir:         filepath.Join(dataDir, "workspace"),
		},
		Logging:  defaultLogging(),
		Security: SecurityConfig{CORSEnabled: false},
	}
}

// LoadNodeConfig loads node configuration from a file, merging with defaults.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cfg := DefaultNodeConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.expandPaths()
	return cfg, nil
}

func (c *NodeConfig) expandPaths() {
	home, _ := os.UserHomeDir()
	expand := func(p string) string {
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}
	c.Service.DataDir = expand(c.Service.DataDir)
	c.Service.PIDFile = expand(c.Service.PIDFile)
	c.Service.RootDir = expand(c.Service.RootDir)
	c.Security.TLSCertFile = expand(c.Security.TLSCertFile)
	c.Security.TLSKeyFile = expand(c.Security.TLSKeyFile)
}

// Save saves the node configuration to a file in TOML format.
func (c *NodeConfig) Save(path string) error {
	return saveTOML(path, c)
}

// Address returns the full address string for the node's HTTP server.
func (c *NodeConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// LogPath returns the path to the node's log file.
func (c *NodeConfig) LogPath() string {
	return filepath.Join(c.Service.DataDir, "logs", "nacc-node.log")
}

// ShutdownTimeoutSeconds returns the node's graceful-shutdown budget.
func (c *NodeConfig) ShutdownTimeoutSeconds() int { return c.Service.ShutdownTimeout }

// PIDPath returns the path to the node's PID file.
func (c *NodeConfig) PIDPath() string {
	if c.Service.PIDFile != "" {
		return c.Service.PIDFile
	}
	return filepath.Join(c.Service.DataDir, "nacc-node.pid")
}

// EnsureDirectories creates all directories the node needs before it can serve.
func (c *NodeConfig) EnsureDirectories() error {
	dirs := []string{c.Service.DataDir, c.Service.RootDir, filepath.Dir(c.LogPath())}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate validates the node configuration.
func (c *NodeConfig) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Service.Port)
	}
	if strings.TrimSpace(c.Service.NodeID) == "" {
		return fmt.Errorf("service.node_id must not be empty")
	}
	if strings.TrimSpace(c.Service.RootDir) == "" {
		return fmt.Errorf("service.root_dir must not be empty")
	}
	if c.Service.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout_seconds must be at least 1")
	}
	if c.Security.TLSEnabled && (c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "") {
		return fmt.Errorf("TLS enabled but cert/key files not specified")
	}
	return nil
}

// ---------------------------------------------------------------------
// Orchestrator config
// ---------------------------------------------------------------------

// NodeDefinitionConfig is one registry entry as read from the
// orchestrator's configuration file.
type NodeDefinitionConfig struct {
	NodeID          string      `toml:"node_id"`
	Transport       string      `toml:"transport"` // "inprocess" or "http"
	RootDir         string      `toml:"root_dir"`  // only meaningful for "inprocess"
	BaseURL         string      `toml:"base_url"`  // only meaningful for "http"
	BearerToken     string      `toml:"bearer_token"`
	Tags            StringSlice `toml:"tags"`
	Description     string      `toml:"description"`
	AllowedCommands StringSlice `toml:"allowed_commands"`
}

// BackendVariantConfig mirrors llm.Config's TOML shape without this
// package importing pkg/llm.
type BackendVariantConfig struct {
	Kind             string            `toml:"kind"`
	TimeoutSeconds   int               `toml:"timeout_seconds"`
	EndpointURL      string            `toml:"endpoint_url"`
	ModelName        string            `toml:"model_name"`
	BearerToken      string            `toml:"bearer_token"`
	Command          StringSlice       `toml:"command"`
	Environment      map[string]string `toml:"environment"`
	RateLimitPerHour int               `toml:"rate_limit_per_hour"`
}

// OrchestratorServiceConfig holds the hub's own HTTP server and runtime
// settings.
type OrchestratorServiceConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	DataDir         string `toml:"data_dir"`
	PIDFile         string `toml:"pid_file"`
	ShutdownTimeout int    `toml:"shutdown_timeout_seconds"`
	MaxRequestSize  int64  `toml:"max_request_size_bytes"`
}

// OrchestratorConfig is the Orchestrator Core's configuration surface.
type OrchestratorConfig struct {
	Service  OrchestratorServiceConfig       `toml:"service"`
	Logging  LoggingConfig                   `toml:"logging"`
	Security SecurityConfig                  `toml:"security"`

	Nodes []NodeDefinitionConfig `toml:"nodes"`

	ActiveBackend string                          `toml:"active_backend"`
	Backends      map[string]BackendVariantConfig `toml:"backends"`

	AuditLogPath      string `toml:"audit_log_path"`
	AuditRetentionMB  int    `toml:"audit_retention_mb"`
	HealthIntervalSec int    `toml:"health_interval_seconds"`

	SwitchBackendToken string `toml:"switch_backend_token"`
	APIKey             string `toml:"api_key"`
}

// DefaultOrchestratorConfig returns the default orchestrator configuration.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	dataDir := defaultDataDir("nacc-orchestrator")

	host := "0.0.0.0"
	if envHost := os.Getenv("NACC_ORCHESTRATOR_HOST"); envHost != "" {
		host = envHost
	}
	port := 8080
	if envPort := os.Getenv("NACC_ORCHESTRATOR_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}

	return &OrchestratorConfig{
		Service: OrchestratorServiceConfig{
			Host:            host,
			Port:            port,
			DataDir:         dataDir,
			PIDFile:         filepath.Join(dataDir, "nacc-orchestrator.pid"),
			ShutdownTimeout: 30,
			MaxRequestSize:  10 * 1024 * 1024,
		},
		Logging:           defaultLogging(),
		Security:          SecurityConfig{CORSEnabled: true},
		ActiveBackend:     "heuristic",
		Backends:          map[string]BackendVariantConfig{"heuristic": {Kind: "heuristic"}},
		AuditRetentionMB:  64,
		HealthIntervalSec: 5,
	}
}

// LoadOrchestratorConfig loads orchestrator configuration from a file,
// merging with defaults.
func LoadOrchestratorConfig(path string) (*OrchestratorConfig, error) {
	cfg := DefaultOrchestratorConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.expandPaths()
	return cfg, nil
}

func (c *OrchestratorConfig) expandPaths() {
	home, _ := os.UserHomeDir()
	expand := func(p string) string {
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}
	c.Service.DataDir = expand(c.Service.DataDir)
	c.Service.PIDFile = expand(c.Service.PIDFile)
	c.AuditLogPath = expand(c.AuditLogPath)
	c.Security.TLSCertFile = expand(c.Security.TLSCertFile)
	c.Security.TLSKeyFile = expand(c.Security.TLSKeyFile)
	for i := range c.Nodes {
		c.Nodes[i].RootDir = expand(c.Nodes[i].RootDir)
	}
}

// Save saves the orchestrator configuration to a file in TOML format.
func (c *OrchestratorConfig) Save(path string) error {
	return saveTOML(path, c)
}

// Address returns the full address string for the orchestrator's HTTP server.
func (c *OrchestratorConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// LogPath returns the path to the orchestrator's log file.
func (c *OrchestratorConfig) LogPath() string {
	return filepath.Join(c.Service.DataDir, "logs", "nacc-orchestrator.log")
}

// ShutdownTimeoutSeconds returns the orchestrator's graceful-shutdown budget.
func (c *OrchestratorConfig) ShutdownTimeoutSeconds() int { return c.Service.ShutdownTimeout }

// PIDPath returns the path to the orchestrator's PID file.
func (c *OrchestratorConfig) PIDPath() string {
	if c.Service.PIDFile != "" {
		return c.Service.PIDFile
	}
	return filepath.Join(c.Service.DataDir, "nacc-orchestrator.pid")
}

// AuditPath returns the path to the audit log, defaulting under DataDir.
func (c *OrchestratorConfig) AuditPath() string {
	if c.AuditLogPath != "" {
		return c.AuditLogPath
	}
	return filepath.Join(c.Service.DataDir, "audit.log")
}

// EnsureDirectories creates all directories the orchestrator needs before
// it can serve.
func (c *OrchestratorConfig) EnsureDirectories() error {
	dirs := []string{c.Service.DataDir, filepath.Dir(c.LogPath()), filepath.Dir(c.AuditPath())}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate validates the orchestrator configuration, including every
// node definition and the active-backend reference.
func (c *OrchestratorConfig) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Service.Port)
	}
	if c.HealthIntervalSec <= 0 {
		return fmt.Errorf("health_interval_seconds must be positive")
	}
	if c.Security.TLSEnabled && (c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "") {
		return fmt.Errorf("TLS enabled but cert/key files not specified")
	}

	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.NodeID == "" {
			return fmt.Errorf("node definition missing node_id")
		}
		if seen[n.NodeID] {
			return fmt.Errorf("duplicate node_id: %s", n.NodeID)
		}
		seen[n.NodeID] = true
		switch n.Transport {
		case "inprocess":
			if n.RootDir == "" {
				return fmt.Errorf("node %s: inprocess transport requires root_dir", n.NodeID)
			}
		case "http":
			if n.BaseURL == "" {
				return fmt.Errorf("node %s: http transport requires base_url", n.NodeID)
			}
		default:
			return fmt.Errorf("node %s: unknown transport %q", n.NodeID, n.Transport)
		}
	}

	if c.ActiveBackend != "" {
		if _, ok := c.Backends[c.ActiveBackend]; !ok {
			return fmt.Errorf("active_backend %q has no matching [backends.%s] entry", c.ActiveBackend, c.ActiveBackend)
		}
	}
	return nil
}

// ---------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------

func defaultDataDir(service string) string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, service)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", service)
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", service)
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, service)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "."+service)
	}
}

func saveTOML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
