package backend

import (
	"testing"

	"github.com/Nivl/git-go/ginternals"
	"github.com/Nivl/git-go/internal/testhelper"
	"github.com/Nivl/git-go/internal/testhelper/confutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	t.Run("full id of a loose object should resolve", func(t *testing.T) {
		t.Parallel()

		repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
		t.Cleanup(cleanup)

		cfg := confutil.NewCommonConfig(t, repoPath)
		b, err := NewFS(cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, b.Close())
		})

		want, err := ginternals.NewOidFromStr("b07e28976ac8972715598f390964d53cf4dbc1bd")
		require.NoError(t, err)

		got, err := b.Lookup("b07e28976ac8972715598f390964d53cf4dbc1bd")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("unique prefix of a loose object should resolve", func(t *testing.T) {
		t.Parallel()

		repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
		t.Cleanup(cleanup)

		cfg := confutil.NewCommonConfig(t, repoPath)
		b, err := NewFS(cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, b.Close())
		})

		want, err := ginternals.NewOidFromStr("b07e28976ac8972715598f390964d53cf4dbc1bd")
		require.NoError(t, err)

		got, err := b.Lookup("b07e2897")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("unique prefix of a packed object should resolve", func(t *testing.T) {
		t.Parallel()

		repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
		t.Cleanup(cleanup)

		cfg := confutil.NewCommonConfig(t, repoPath)
		b, err := NewFS(cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, b.Close())
		})

		want, err := ginternals.NewOidFromStr("1dcdadc2a420225783794fbffd51e2e137a69646")
		require.NoError(t, err)

		got, err := b.Lookup("1dcdadc2")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("non-existing prefix should return ErrObjectNotFound", func(t *testing.T) {
		t.Parallel()

		repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
		t.Cleanup(cleanup)

		cfg := confutil.NewCommonConfig(t, repoPath)
		b, err := NewFS(cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, b.Close())
		})

		_, err = b.Lookup("ffffffff")
		require.Error(t, err)
		assert.True(t, xerrors.Is(err, ginternals.ErrObjectNotFound), "unexpected error received")
	})

	t.Run("malformed id should return an error", func(t *testing.T) {
		t.Parallel()

		repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
		t.Cleanup(cleanup)

		cfg := confutil.NewCommonConfig(t, repoPath)
		b, err := NewFS(cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, b.Close())
		})

		_, err = b.Lookup("not-a-hex-string")
		require.Error(t, err)
	})
}
