package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, ".env", `
# Comment line
YT_ENV_KEY1=value1
YT_ENV_KEY2="quoted value"

YT_ENV_PRESET=from-file
`)
	t.Setenv("YT_ENV_PRESET", "from-process")
	t.Setenv("YT_ENV_KEY1", "")
	os.Unsetenv("YT_ENV_KEY1")
	t.Setenv("YT_ENV_KEY2", "")
	os.Unsetenv("YT_ENV_KEY2")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "value1", os.Getenv("YT_ENV_KEY1"))
	assert.Equal(t, "quoted value", os.Getenv("YT_ENV_KEY2"))
	assert.Equal(t, "from-process", os.Getenv("YT_ENV_PRESET"), "process environment wins")
}

func TestLoadEnvOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, LoadEnvOptional(missing))
	assert.Error(t, LoadEnv(missing))
}
