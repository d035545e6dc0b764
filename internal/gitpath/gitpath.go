// Package gitpath contains consts and methods to work with path inside
// the .git directory
package gitpath

import (
	"os"
	"path"
)

// .git/ Files and directories
const (
	DotGitPath      = ".git"
	ConfigPath      = "config"
	DescriptionPath = "description"
	PackedRefsPath  = "packed-refs"
	HEADPath        = "HEAD"
	ObjectsPath     = "objects"
	ObjectsInfoPath = ObjectsPath + string(os.PathSeparator) + "info"
	ObjectsPackPath = ObjectsPath + string(os.PathSeparator) + "pack"
	RefsPath        = "refs"
	RefsTagsPath    = RefsPath + "/tags"
	RefsHeadsPath   = RefsPath + "/heads"
	RefsRemotesPath = RefsPath + "/remotes"
)

// Ref returns the unix path of a ref given its name relative to the
// refs directory.
// ex. for `heads/main` returns `refs/heads/main`
func Ref(name string) string {
	return path.Join(RefsPath, name)
}

// LocalBranch returns the unix path of a local branch given its short name.
// ex. for `main` returns `refs/heads/main`
func LocalBranch(name string) string {
	return path.Join(RefsHeadsPath, name)
}

// LocalTag returns the unix path of a local tag given its short name.
// ex. for `v0.1` returns `refs/tags/v0.1`
func LocalTag(name string) string {
	return path.Join(RefsTagsPath, name)
}
