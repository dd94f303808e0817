package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/asrlabs/asr/pkg/skills"
)

// remoteFile is one file in a remote skill listing. Path is relative to the
// descriptor's subpath; downloadURL is provider-specific.
type remoteFile struct {
	path        string
	downloadURL string
}

type provider interface {
	list(ctx context.Context, remote *skills.RemoteSource) ([]remoteFile, error)
	download(ctx context.Context, remote *skills.RemoteSource, file remoteFile, destRoot string) error
	probe(ctx context.Context, remote *skills.RemoteSource) error
}

func (f *Fetcher) provider(remote *skills.RemoteSource) provider {
	if remote.Provider == skills.ProviderGitLab {
		return &gitlabProvider{f: f}
	}
	return &githubProvider{f: f}
}

// doRequest performs one authenticated GET and classifies the response.
// Transient failures (network errors, 5xx) and rate limits come back as
// retryable errors; 404 is terminal.
func (f *Fetcher) doRequest(ctx context.Context, endpoint, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid request")
	}
	req.Header.Set("User-Agent", "asr-skill-fetcher")
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Wrapf(ErrRateLimited, "GET %s", endpoint)
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return nil, errors.Wrapf(ErrRateLimited, "GET %s", endpoint)
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrUnreachable, "GET %s: not found", endpoint)
	case resp.StatusCode >= 500:
		return nil, &transientError{err: errors.Errorf("GET %s: status %d", endpoint, resp.StatusCode)}
	default:
		return nil, errors.Wrapf(ErrUnreachable, "GET %s: status %d", endpoint, resp.StatusCode)
	}
}

// get wraps doRequest with bounded retries and collapses exhausted transient
// failures into ErrUnreachable.
func (f *Fetcher) get(ctx context.Context, endpoint, token string) ([]byte, error) {
	var body []byte
	err := f.withRetry(ctx, func() error {
		var reqErr error
		body, reqErr = f.doRequest(ctx, endpoint, token)
		return reqErr
	})
	if err != nil {
		if errors.Is(err, ErrUnreachable) || errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrUnreachable, "%v", err)
	}
	return body, nil
}

// IsUnreachable reports whether err classifies a source as unresolvable,
// including exhausted rate-limit retries.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrRateLimited)
}

func writeFetchedFile(destRoot, relPath string, data []byte) error {
	target := filepath.Join(destRoot, filepath.FromSlash(relPath))

	// Guard against listing entries escaping the materialization root.
	rel, err := filepath.Rel(destRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return errors.Errorf("remote file path %q escapes skill root", relPath)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}
	return os.WriteFile(target, data, 0o644)
}

func escapeURLPath(v string) string {
	parts := strings.Split(strings.Trim(v, "/"), "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, url.PathEscape(part))
	}
	return strings.Join(out, "/")
}

// githubProvider lists files through the GitHub contents API and downloads
// them via the listing's download URLs.
type githubProvider struct {
	f *Fetcher
}

type githubContentsEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

func (p *githubProvider) token() string {
	return p.f.tokens[skills.ProviderGitHub]
}

func (p *githubProvider) contentsURL(remote *skills.RemoteSource, subpath string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		strings.TrimRight(p.f.apiBase[skills.ProviderGitHub], "/"),
		url.PathEscape(remote.Owner), url.PathEscape(remote.Repo),
		escapeURLPath(subpath), url.QueryEscape(remote.Ref))
}

func (p *githubProvider) list(ctx context.Context, remote *skills.RemoteSource) ([]remoteFile, error) {
	return p.listDir(ctx, remote, remote.Subpath)
}

func (p *githubProvider) listDir(ctx context.Context, remote *skills.RemoteSource, dir string) ([]remoteFile, error) {
	body, err := p.f.get(ctx, p.contentsURL(remote, dir), p.token())
	if err != nil {
		return nil, err
	}

	var entries []githubContentsEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, errors.Wrapf(ErrUnreachable, "unexpected contents listing for %s: %v", dir, err)
	}

	var files []remoteFile
	for _, entry := range entries {
		switch entry.Type {
		case "file":
			files = append(files, remoteFile{
				path:        strings.TrimPrefix(strings.TrimPrefix(entry.Path, remote.Subpath), "/"),
				downloadURL: entry.DownloadURL,
			})
		case "dir":
			nested, err := p.listDir(ctx, remote, entry.Path)
			if err != nil {
				return nil, err
			}
			files = append(files, nested...)
		}
	}
	return files, nil
}

func (p *githubProvider) download(ctx context.Context, remote *skills.RemoteSource, file remoteFile, destRoot string) error {
	endpoint := file.downloadURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s/%s/%s/%s",
			strings.TrimRight(p.f.rawBase[skills.ProviderGitHub], "/"),
			url.PathEscape(remote.Owner), url.PathEscape(remote.Repo),
			url.PathEscape(remote.Ref), escapeURLPath(remote.Subpath+"/"+file.path))
	}

	data, err := p.f.get(ctx, endpoint, p.token())
	if err != nil {
		return errors.Wrapf(err, "failed to download %s", file.path)
	}
	return writeFetchedFile(destRoot, file.path, data)
}

func (p *githubProvider) probe(ctx context.Context, remote *skills.RemoteSource) error {
	_, err := p.f.get(ctx, p.contentsURL(remote, remote.Subpath), p.token())
	return err
}

// gitlabProvider lists files through the GitLab repository tree API and
// downloads raw blobs.
type gitlabProvider struct {
	f *Fetcher
}

type gitlabTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

func (p *gitlabProvider) token() string {
	return p.f.tokens[skills.ProviderGitLab]
}

func (p *gitlabProvider) projectID(remote *skills.RemoteSource) string {
	return url.PathEscape(remote.Owner + "/" + remote.Repo)
}

func (p *gitlabProvider) treeURL(remote *skills.RemoteSource, perPage int) string {
	return fmt.Sprintf("%s/projects/%s/repository/tree?path=%s&ref=%s&recursive=true&per_page=%d",
		strings.TrimRight(p.f.apiBase[skills.ProviderGitLab], "/"),
		p.projectID(remote), url.QueryEscape(remote.Subpath), url.QueryEscape(remote.Ref), perPage)
}

func (p *gitlabProvider) list(ctx context.Context, remote *skills.RemoteSource) ([]remoteFile, error) {
	body, err := p.f.get(ctx, p.treeURL(remote, 100), p.token())
	if err != nil {
		return nil, err
	}

	var entries []gitlabTreeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, errors.Wrapf(ErrUnreachable, "unexpected tree listing: %v", err)
	}

	var files []remoteFile
	for _, entry := range entries {
		if entry.Type != "blob" {
			continue
		}
		files = append(files, remoteFile{
			path: strings.TrimPrefix(strings.TrimPrefix(entry.Path, remote.Subpath), "/"),
		})
	}
	return files, nil
}

func (p *gitlabProvider) download(ctx context.Context, remote *skills.RemoteSource, file remoteFile, destRoot string) error {
	endpoint := fmt.Sprintf("%s/projects/%s/repository/files/%s/raw?ref=%s",
		strings.TrimRight(p.f.apiBase[skills.ProviderGitLab], "/"),
		p.projectID(remote),
		url.PathEscape(remote.Subpath+"/"+file.path),
		url.QueryEscape(remote.Ref))

	data, err := p.f.get(ctx, endpoint, p.token())
	if err != nil {
		return errors.Wrapf(err, "failed to download %s", file.path)
	}
	return writeFetchedFile(destRoot, file.path, data)
}

func (p *gitlabProvider) probe(ctx context.Context, remote *skills.RemoteSource) error {
	body, err := p.f.get(ctx, p.treeURL(remote, 1), p.token())
	if err != nil {
		return err
	}

	var entries []gitlabTreeEntry
	if err := json.Unmarshal(body, &entries); err != nil || len(entries) == 0 {
		return errors.Wrapf(ErrUnreachable, "%s: subpath not found", remote.URL())
	}
	return nil
}
