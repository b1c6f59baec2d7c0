package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeConfig_ValidateRequiresNodeIDAndRootDir(t *testing.T) {
	cfg := DefaultNodeConfig()
	err := cfg.Validate()
	assert.ErrorContains(t, err, "node_id")

	cfg.Service.NodeID = "n1"
	assert.NoError(t, cfg.Validate())

	cfg.Service.RootDir = ""
	assert.ErrorContains(t, cfg.Validate(), "root_dir")
}

func TestNodeConfig_ValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultNodeConfig()
	cfg.Service.NodeID = "n1"
	cfg.Service.Port = 70000
	assert.ErrorContains(t, cfg.Validate(), "invalid port")
}

func TestNodeConfig_ValidateRequiresTLSPairWhenEnabled(t *testing.T) {
	cfg := DefaultNodeConfig()
	cfg.Service.NodeID = "n1"
	cfg.Security.TLSEnabled = true
	assert.ErrorContains(t, cfg.Validate(), "TLS")

	cfg.Security.TLSCertFile = "cert.pem"
	cfg.Security.TLSKeyFile = "key.pem"
	assert.NoError(t, cfg.Validate())
}

func TestLoadNodeConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadNodeConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Service.Port)
}

func TestLoadNodeConfig_ParsesTOMLAndExpandsTilde(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	body := `
[service]
node_id = "n1"
root_dir = "~/nacc-root"
port = 9090
allowed_commands = ["echo", "ls"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "nacc-root"), cfg.Service.RootDir)
	assert.Equal(t, "n1", cfg.Service.NodeID)
	assert.Equal(t, 9090, cfg.Service.Port)
	assert.Equal(t, []string{"echo", "ls"}, []string(cfg.Service.AllowedCommands))
}

func TestStringSlice_UnmarshalsSingleStringAsOneElement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	body := `
[service]
node_id = "n1"
root_dir = "/tmp/nacc-root"
allowed_commands = "echo"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, []string(cfg.Service.AllowedCommands))
}

func TestNodeConfig_SaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")

	cfg := DefaultNodeConfig()
	cfg.Service.NodeID = "n1"
	cfg.Service.RootDir = filepath.Join(dir, "workspace")
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "n1", loaded.Service.NodeID)
}

func TestOrchestratorConfig_ValidateRejectsDuplicateNodeIDs(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.Nodes = []NodeDefinitionConfig{
		{NodeID: "n1", Transport: "inprocess", RootDir: "/tmp/a"},
		{NodeID: "n1", Transport: "inprocess", RootDir: "/tmp/b"},
	}
	assert.ErrorContains(t, cfg.Validate(), "duplicate")
}

func TestOrchestratorConfig_ValidateRequiresTransportSpecificFields(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.Nodes = []NodeDefinitionConfig{{NodeID: "n1", Transport: "inprocess"}}
	assert.ErrorContains(t, cfg.Validate(), "root_dir")

	cfg.Nodes = []NodeDefinitionConfig{{NodeID: "n1", Transport: "http"}}
	assert.ErrorContains(t, cfg.Validate(), "base_url")

	cfg.Nodes = []NodeDefinitionConfig{{NodeID: "n1", Transport: "carrier-pigeon"}}
	assert.ErrorContains(t, cfg.Validate(), "unknown transport")
}

func TestOrchestratorConfig_ValidateRequiresActiveBackendEntry(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.ActiveBackend = "gemini"
	assert.ErrorContains(t, cfg.Validate(), "active_backend")

	cfg.Backends["gemini"] = BackendVariantConfig{Kind: "gemini"}
	assert.NoError(t, cfg.Validate())
}

func TestOrchestratorConfig_DefaultsAreValid(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	assert.NoError(t, cfg.Validate())
}

func TestOrchestratorConfig_AuditPathDefaultsUnderDataDir(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.Service.DataDir = "/tmp/nacc-orch"
	assert.Equal(t, filepath.Join("/tmp/nacc-orch", "audit.log"), cfg.AuditPath())

	cfg.AuditLogPath = "/var/log/custom-audit.log"
	assert.Equal(t, "/var/log/custom-audit.log", cfg.AuditPath())
}
