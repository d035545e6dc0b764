package env_test

import (
	"testing"

	"github.com/Nivl/git-go/env"
	"github.com/stretchr/testify/assert"
)

func TestNewFromKVList(t *testing.T) {
	t.Parallel()

	e := env.NewFromKVList([]string{
		"GIT_DIR=/tmp/repo/.git",
		"GIT_CONFIG_NOSYSTEM=true",
	})

	assert.True(t, e.Has("GIT_DIR"))
	assert.Equal(t, "/tmp/repo/.git", e.Get("GIT_DIR"))

	assert.True(t, e.Has("GIT_CONFIG_NOSYSTEM"))
	assert.Equal(t, "true", e.Get("GIT_CONFIG_NOSYSTEM"))

	assert.False(t, e.Has("GIT_WORK_TREE"))
	assert.Empty(t, e.Get("GIT_WORK_TREE"))
}

func TestNewFromOs(t *testing.T) {
	t.Parallel()

	e := env.NewFromOs()
	assert.NotNil(t, e)
}
