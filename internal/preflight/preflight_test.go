package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

func TestCheckWorkspace_Writable(t *testing.T) {
	r := CheckWorkspace(t.TempDir())
	assert.Equal(t, StatusPass, r.Status)
	assert.True(t, r.Required)
}

func TestCheckWorkspace_Unwritable(t *testing.T) {
	r := CheckWorkspace("/proc/preflight-cannot-write-here")
	assert.Equal(t, StatusFail, r.Status)
	assert.True(t, r.IsCritical())
}

func TestCheckDiskSpace(t *testing.T) {
	r := CheckDiskSpace(t.TempDir())
	assert.NotEqual(t, StatusFail, r.Status)
	assert.Contains(t, r.Message, "free")
}

func TestCheckCredentials(t *testing.T) {
	static := &workspace.Project{
		ID:    "local",
		Model: embed.ModelDescriptor{Provider: embed.ProviderStatic, Model: "static"},
	}
	assert.Equal(t, StatusPass, CheckCredentials(static).Status)

	openai := &workspace.Project{
		ID: "docs",
		Model: embed.ModelDescriptor{
			Provider:  embed.ProviderOpenAI,
			Model:     "text-embedding-3-small",
			APIKeyEnv: "PREFLIGHT_TEST_KEY",
		},
	}
	r := CheckCredentials(openai)
	assert.Equal(t, StatusFail, r.Status)
	assert.Contains(t, r.Message, "PREFLIGHT_TEST_KEY")

	t.Setenv("PREFLIGHT_TEST_KEY", "sk-test")
	assert.Equal(t, StatusPass, CheckCredentials(openai).Status)
}

func TestRun_IncludesProjectCredentials(t *testing.T) {
	dir := t.TempDir()
	store, err := workspace.NewStore(dir, nil)
	require.NoError(t, err)
	_, err = store.CreateProject("docs", "",
		embed.ModelDescriptor{Provider: embed.ProviderStatic, Model: "static"},
		chunk.DefaultConfig())
	require.NoError(t, err)

	results := Run(dir, store)
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "workspace")
	assert.Contains(t, names, "disk_space")
	assert.Contains(t, names, "credentials:docs")
}
