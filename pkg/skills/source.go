package skills

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SourceKind discriminates the two source descriptor variants.
type SourceKind string

// Source kinds
const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// Remote providers
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// RemoteSource identifies a skill directory hosted in a remote repository.
// It carries no content; bytes are resolved on demand by the fetch package.
type RemoteSource struct {
	Provider string `json:"provider"`
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	Ref      string `json:"ref"`
	Subpath  string `json:"subpath"`
}

// Source is a tagged union pointing at a skill's authoritative bytes.
// Exactly one variant is populated: Path for local sources, Remote for
// remote ones.
type Source struct {
	Kind   SourceKind    `json:"kind"`
	Path   string        `json:"path,omitempty"`
	Remote *RemoteSource `json:"remote,omitempty"`
}

// LocalSource returns a local source descriptor for the given directory.
// The path is resolved to an absolute path.
func LocalSource(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, errors.Wrapf(err, "failed to resolve path %q", path)
	}
	return Source{Kind: SourceLocal, Path: abs}, nil
}

// IsRemote reports whether the descriptor points at a remote repository.
func (s Source) IsRemote() bool {
	return s.Kind == SourceRemote
}

// Validate checks the exactly-one-variant invariant.
func (s Source) Validate() error {
	switch s.Kind {
	case SourceLocal:
		if s.Path == "" || s.Remote != nil {
			return errors.New("local source must have a path and no remote coordinates")
		}
	case SourceRemote:
		if s.Remote == nil || s.Path != "" {
			return errors.New("remote source must have remote coordinates and no path")
		}
		r := s.Remote
		if r.Provider == "" || r.Owner == "" || r.Repo == "" || r.Ref == "" || r.Subpath == "" {
			return errors.New("remote source is missing provider, owner, repo, ref, or subpath")
		}
	default:
		return errors.Errorf("unknown source kind %q", s.Kind)
	}
	return nil
}

// String renders the descriptor in the form it was registered: the absolute
// path for local sources, the canonical tree URL for remote ones.
func (s Source) String() string {
	if s.Kind == SourceRemote && s.Remote != nil {
		return s.Remote.URL()
	}
	return s.Path
}

// URL renders the canonical tree URL for a remote source.
func (r *RemoteSource) URL() string {
	return fmt.Sprintf("https://%s/%s/%s/tree/%s/%s", providerHost(r.Provider), r.Owner, r.Repo, r.Ref, r.Subpath)
}

func providerHost(provider string) string {
	switch provider {
	case ProviderGitLab:
		return "gitlab.com"
	default:
		return "github.com"
	}
}

// IsRemoteRef reports whether raw looks like a remote source URL rather than
// a filesystem path.
func IsRemoteRef(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// ParseSource parses a registration argument into a source descriptor.
// Remote descriptors use the tree URL grammar
// https://{host}/{owner}/{repo}/tree/{ref}/{subpath} with host one of
// github.com or gitlab.com. Anything else is treated as a local directory
// path.
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, errors.New("source cannot be empty")
	}

	if !IsRemoteRef(raw) {
		return LocalSource(raw)
	}

	remote, err := ParseRemoteURL(raw)
	if err != nil {
		return Source{}, err
	}
	return Source{Kind: SourceRemote, Remote: remote}, nil
}

// ParseRemoteURL parses a tree URL into remote repository coordinates.
func ParseRemoteURL(raw string) (*RemoteSource, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrap(err, "invalid source URL")
	}

	var provider string
	switch strings.ToLower(strings.TrimPrefix(u.Host, "www.")) {
	case "github.com":
		provider = ProviderGitHub
	case "gitlab.com":
		provider = ProviderGitLab
	default:
		return nil, errors.Errorf("unsupported source host %q (expected github.com or gitlab.com)", u.Host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 5 || parts[2] != "tree" {
		return nil, errors.Errorf("invalid source URL %q: expected https://{host}/{owner}/{repo}/tree/{ref}/{subpath}", raw)
	}

	owner := parts[0]
	repo := parts[1]
	ref := parts[3]
	subpath := strings.Join(parts[4:], "/")

	if owner == "" || repo == "" || ref == "" || subpath == "" {
		return nil, errors.Errorf("invalid source URL %q: owner, repo, ref, and subpath are all required", raw)
	}
	if cleaned := strings.TrimPrefix(subpath, "/"); cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return nil, errors.Errorf("invalid source URL %q: subpath escapes repository root", raw)
	}

	return &RemoteSource{
		Provider: provider,
		Owner:    owner,
		Repo:     repo,
		Ref:      ref,
		Subpath:  subpath,
	}, nil
}
