package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/geekxflood/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekxflood/proteus/internal/mib"
	"github.com/geekxflood/proteus/internal/oid"
)

// newTestManager builds a real config manager from the shipped CUE
// schema and a test-local YAML file.
func newTestManager(t *testing.T, yaml string) config.Manager {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644), "Failed to write config file")

	manager, err := config.NewManager(config.Options{
		SchemaPath: "../../cmd/schemas/config.cue",
		ConfigPath: configPath,
	})
	require.NoError(t, err, "Failed to create config manager")
	t.Cleanup(func() { manager.Close() })

	return manager
}

func testConfigYAML(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "traps.db")
	return `app:
  name: "proteus-test"
  heartbeat_enabled: false
listener:
  enabled: false
metrics:
  enabled: false
storage:
  connection_string: "` + dbPath + `"
`
}

func TestNewApplicationRequiresManager(t *testing.T) {
	_, err := NewApplication(nil)
	require.Error(t, err, "Expected error for nil config manager")
}

func TestApplicationInitializeAndShutdown(t *testing.T) {
	manager := newTestManager(t, testConfigYAML(t))

	application, err := NewApplication(manager)
	require.NoError(t, err, "Failed to create application")
	assert.Equal(t, "proteus-test", application.config.Name)
	assert.False(t, application.config.HeartbeatEnabled)

	require.NoError(t, application.Initialize(), "Failed to initialize application")

	assert.NotNil(t, application.Engine())
	assert.NotNil(t, application.Resolver())
	assert.NotNil(t, application.Registry())
	assert.NotNil(t, application.Transport())

	// The local engine answers over the built-in tree once initialized.
	result := application.Engine().Get(oid.MustParse(mib.SysDescrOID))
	require.True(t, result.Success, "GET sysDescr failed: %+v", result)
	assert.Equal(t, "Proteus SNMP engine", result.Value)

	info, err := application.Resolver().ResolveOID(mib.SysDescrOID)
	require.NoError(t, err, "Failed to resolve sysDescr")
	assert.Equal(t, "sysDescr", info.Name)

	require.NoError(t, application.Shutdown(), "Shutdown failed")
}

func TestApplicationTrapFlow(t *testing.T) {
	manager := newTestManager(t, testConfigYAML(t))

	application, err := NewApplication(manager)
	require.NoError(t, err, "Failed to create application")
	require.NoError(t, application.Initialize(), "Failed to initialize application")

	require.NoError(t, application.startStorageSink(), "Failed to start storage sink")

	walk, err := application.Engine().Walk(context.Background(), oid.MustParse("1.3.6.1.2.1.1"), 0)
	require.NoError(t, err, "Walk failed")
	assert.NotEmpty(t, walk.VarBinds)
	assert.False(t, walk.Truncated)

	require.NoError(t, application.Shutdown(), "Shutdown failed")
}
