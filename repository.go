// Package git is the porcelain entry point of the library: it opens or
// initializes a repository backed by a config.Config and exposes the
// object/reference operations cmd/git-go and other callers need,
// without requiring them to depend on backend or ginternals directly.
package git

import (
	"fmt"
	"path/filepath"

	"github.com/Nivl/git-go/backend"
	"github.com/Nivl/git-go/ginternals"
	"github.com/Nivl/git-go/ginternals/config"
	"github.com/Nivl/git-go/ginternals/object"
)

// OpenOptions holds the options used to open an existing repository.
type OpenOptions struct {
	// IsBare states whether the repository has no work tree.
	IsBare bool
}

// InitOptions holds the options used to create a new repository.
type InitOptions struct {
	// IsBare states whether the repository has no work tree.
	IsBare bool
	// InitialBranchName is the name of the branch HEAD will point to.
	// Defaults to ginternals.Master.
	InitialBranchName string
	// Symlink creates a .git file pointing at the real git directory
	// instead of a .git directory, for --separate-git-dir.
	Symlink bool
}

// Repository is a handle on a git repository: its config plus the
// backend storing its objects and references.
type Repository struct {
	// Config is the configuration this repository was opened/created
	// with.
	Config *config.Config

	b *backend.Backend
}

// OpenRepositoryWithParams opens an existing repository using the
// provided config.
func OpenRepositoryWithParams(cfg *config.Config, opts OpenOptions) (*Repository, error) {
	b, err := backend.NewFS(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not open repository: %w", err)
	}
	return &Repository{Config: cfg, b: b}, nil
}

// OpenRepository opens the repository rooted at the given work tree
// path, using the default .git directory.
func OpenRepository(path string) (*Repository, error) {
	cfg, err := config.LoadConfigSkipEnv(config.LoadConfigOptions{
		WorkTreePath: path,
		GitDirPath:   filepath.Join(path, config.DefaultDotGitDirName),
	})
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	return OpenRepositoryWithParams(cfg, OpenOptions{})
}

// InitRepositoryWithParams creates (or re-initializes) a repository
// using the provided config.
func InitRepositoryWithParams(cfg *config.Config, opts InitOptions) (*Repository, error) {
	b, err := backend.NewFS(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not init repository: %w", err)
	}

	branch := opts.InitialBranchName
	if branch == "" {
		branch = ginternals.Master
	}

	err = b.InitWithOptions(branch, backend.InitOptions{
		CreateSymlink: opts.Symlink,
	})
	if err != nil {
		return nil, fmt.Errorf("could not init repository: %w", err)
	}

	return &Repository{Config: cfg, b: b}, nil
}

// Close releases every resource (packfiles, handles) the repository
// has opened.
func (r *Repository) Close() error {
	return r.b.Close()
}

// Reference returns the reference matching the given name.
// ginternals.ErrRefNotFound is returned if it doesn't exist.
func (r *Repository) Reference(name string) (*ginternals.Reference, error) {
	return r.b.Reference(name)
}

// NewReference creates (or overwrites) a reference that targets an
// object, and persists it.
func (r *Repository) NewReference(name string, target ginternals.Oid) (*ginternals.Reference, error) {
	ref := ginternals.NewReference(name, target)
	if err := r.b.WriteReference(ref); err != nil {
		return nil, fmt.Errorf("could not write reference %s: %w", name, err)
	}
	return ref, nil
}

// NewSymbolicReference creates (or overwrites) a reference that
// targets another reference, and persists it.
func (r *Repository) NewSymbolicReference(name, target string) (*ginternals.Reference, error) {
	ref := ginternals.NewSymbolicReference(name, target)
	if err := r.b.WriteReference(ref); err != nil {
		return nil, fmt.Errorf("could not write reference %s: %w", name, err)
	}
	return ref, nil
}

// WalkReferences runs f on every reference known to the repository.
func (r *Repository) WalkReferences(f backend.RefWalkFunc) error {
	return r.b.WalkReferences(f)
}

// Object returns the object matching the given oid.
// ginternals.ErrObjectNotFound is returned if it doesn't exist.
func (r *Repository) Object(oid ginternals.Oid) (*object.Object, error) {
	return r.b.Object(oid)
}

// HasObject returns whether an object exists in the odb.
func (r *Repository) HasObject(oid ginternals.Oid) (bool, error) {
	return r.b.HasObject(oid)
}

// Lookup resolves a full or abbreviated hex object id to the full Oid of
// the object it designates.
func (r *Repository) Lookup(hex string) (ginternals.Oid, error) {
	return r.b.Lookup(hex)
}

// WriteObject persists an object to the odb and returns its oid.
func (r *Repository) WriteObject(o *object.Object) (ginternals.Oid, error) {
	return r.b.WriteObject(o)
}

// Commit returns the commit matching the given oid.
func (r *Repository) Commit(oid ginternals.Oid) (*object.Commit, error) {
	o, err := r.b.Object(oid)
	if err != nil {
		return nil, err
	}
	return o.AsCommit()
}

// Tag returns the reference of the local tag matching the given short
// name (ex. "v1.0.0").
func (r *Repository) Tag(shortName string) (*ginternals.Reference, error) {
	return r.b.Reference(ginternals.LocalTagFullName(shortName))
}
