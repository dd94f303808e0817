// Package fetch resolves remote source descriptors to local bytes. It speaks
// the GitHub contents API and the GitLab repository tree API, materializes a
// skill's files into a temporary directory, and hands every other component
// the same shape a local skill directory has, so remote and local skills are
// interchangeable above this package.
//
// Fetching is concurrency-bounded: distinct skills are fetched through a
// fixed-size worker pool and per-skill file downloads are joined
// all-or-nothing. Successful fetches are memoized per (descriptor, ref) for
// the lifetime of one command invocation.
package fetch

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/asrlabs/asr/pkg/logger"
	"github.com/asrlabs/asr/pkg/skills"
)

var (
	// ErrUnreachable indicates a source could not be resolved: the local path
	// is gone, or the remote endpoint failed after exhausting retries.
	ErrUnreachable = errors.New("source unreachable")
	// ErrRateLimited indicates the remote provider rejected the request due
	// to rate limiting. It is retried with backoff before being surfaced.
	ErrRateLimited = errors.New("rate limited by remote provider")
)

// Defaults for the fetcher's resource bounds.
const (
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
	DefaultRetries     = 3
)

// Fetcher resolves remote sources with bounded concurrency, retries, and
// per-invocation caching.
type Fetcher struct {
	concurrency int
	timeout     time.Duration
	retries     uint
	client      *http.Client
	apiBase     map[string]string
	rawBase     map[string]string
	tokens      map[string]string

	mu    sync.Mutex
	cache map[string]string // descriptor key -> materialized directory
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithConcurrency bounds the number of skills fetched in parallel
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithRetries sets the bounded retry count for transient failures
func WithRetries(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.retries = uint(n)
		}
	}
}

// WithHTTPClient sets a custom HTTP client (used by tests)
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithAPIBase overrides a provider's API base URL (used by tests)
func WithAPIBase(provider, base string) Option {
	return func(f *Fetcher) {
		f.apiBase[provider] = base
	}
}

// WithRawBase overrides a provider's raw-content base URL (used by tests)
func WithRawBase(provider, base string) Option {
	return func(f *Fetcher) {
		f.rawBase[provider] = base
	}
}

// WithToken sets a bearer token for a provider
func WithToken(provider, token string) Option {
	return func(f *Fetcher) {
		if token != "" {
			f.tokens[provider] = token
		}
	}
}

// New creates a Fetcher. Tokens default to the ASR_GITHUB_TOKEN /
// GITHUB_TOKEN and ASR_GITLAB_TOKEN / GITLAB_TOKEN environment variables.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		retries:     DefaultRetries,
		apiBase: map[string]string{
			skills.ProviderGitHub: "https://api.github.com",
			skills.ProviderGitLab: "https://gitlab.com/api/v4",
		},
		rawBase: map[string]string{
			skills.ProviderGitHub: "https://raw.githubusercontent.com",
		},
		tokens: map[string]string{},
		cache:  map[string]string{},
	}

	if token := envToken("ASR_GITHUB_TOKEN", "GITHUB_TOKEN"); token != "" {
		f.tokens[skills.ProviderGitHub] = token
	}
	if token := envToken("ASR_GITLAB_TOKEN", "GITLAB_TOKEN"); token != "" {
		f.tokens[skills.ProviderGitLab] = token
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}

	return f
}

func envToken(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func cacheKey(r *skills.RemoteSource) string {
	return r.Provider + ":" + r.Owner + "/" + r.Repo + "@" + r.Ref + ":" + r.Subpath
}

// Resolve returns a local directory holding the skill's files: the source
// path itself for local descriptors, a fetched temporary directory for
// remote ones. A missing local path is classified as ErrUnreachable.
func (f *Fetcher) Resolve(ctx context.Context, source skills.Source) (string, error) {
	if err := source.Validate(); err != nil {
		return "", err
	}

	if source.Kind == skills.SourceLocal {
		info, err := os.Stat(source.Path)
		if err != nil || !info.IsDir() {
			return "", errors.Wrapf(ErrUnreachable, "local path %s", source.Path)
		}
		return source.Path, nil
	}

	return f.Fetch(ctx, source.Remote)
}

// Probe checks that a source still resolves, without materializing
// its content.
func (f *Fetcher) Probe(ctx context.Context, source skills.Source) error {
	if err := source.Validate(); err != nil {
		return err
	}

	if source.Kind == skills.SourceLocal {
		info, err := os.Stat(source.Path)
		if err != nil || !info.IsDir() {
			return errors.Wrapf(ErrUnreachable, "local path %s", source.Path)
		}
		return nil
	}

	f.mu.Lock()
	_, cached := f.cache[cacheKey(source.Remote)]
	f.mu.Unlock()
	if cached {
		return nil
	}

	return f.provider(source.Remote).probe(ctx, source.Remote)
}

// Fetch resolves a remote descriptor to a local temporary directory. The
// result is cached per (descriptor, ref) for this invocation; repeated
// references to the same remote skill do not re-fetch.
func (f *Fetcher) Fetch(ctx context.Context, remote *skills.RemoteSource) (string, error) {
	key := cacheKey(remote)

	f.mu.Lock()
	if dir, ok := f.cache[key]; ok {
		f.mu.Unlock()
		return dir, nil
	}
	f.mu.Unlock()

	dir, err := f.fetch(ctx, remote)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.cache[key] = dir
	f.mu.Unlock()

	logger.G(ctx).WithField("source", remote.URL()).Debug("fetched remote skill")
	return dir, nil
}

// fetch lists and downloads one skill all-or-nothing into a temp directory
func (f *Fetcher) fetch(ctx context.Context, remote *skills.RemoteSource) (string, error) {
	files, err := f.provider(remote).list(ctx, remote)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", errors.Wrapf(ErrUnreachable, "%s: no files under subpath", remote.URL())
	}

	dir, err := os.MkdirTemp("", "asr-fetch-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp directory")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			return f.provider(remote).download(gctx, remote, file, dir)
		})
	}

	if err := g.Wait(); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	return dir, nil
}

// Result is the outcome of one skill's fetch within a batch.
type Result struct {
	Name string
	Dir  string
	Err  error
}

// FetchAll fetches distinct skills through the bounded worker pool. Errors
// are collected per skill rather than aborting the batch; the returned
// error aggregates every per-skill failure. Cancelling ctx stops dispatching
// new fetches and lets in-flight ones finish or time out.
func (f *Fetcher) FetchAll(ctx context.Context, sources map[string]*skills.RemoteSource) (map[string]Result, error) {
	results := make(map[string]Result, len(sources))
	var resultsMu sync.Mutex

	var wg sync.WaitGroup
	sem := make(chan struct{}, f.concurrency)

	for name, remote := range sources {
		if ctx.Err() != nil {
			resultsMu.Lock()
			results[name] = Result{Name: name, Err: errors.Wrap(ErrUnreachable, "fetch cancelled")}
			resultsMu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(name string, remote *skills.RemoteSource) {
			defer wg.Done()
			defer func() { <-sem }()

			dir, err := f.Fetch(ctx, remote)
			resultsMu.Lock()
			results[name] = Result{Name: name, Dir: dir, Err: err}
			resultsMu.Unlock()
		}(name, remote)
	}

	wg.Wait()

	var merr *multierror.Error
	for _, res := range results {
		if res.Err != nil {
			merr = multierror.Append(merr, errors.Wrapf(res.Err, "skill %s", res.Name))
		}
	}

	return results, merr.ErrorOrNil()
}

// Cleanup removes all materialized temp directories and clears the cache.
func (f *Fetcher) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, dir := range f.cache {
		os.RemoveAll(dir)
		delete(f.cache, key)
	}
}

// withRetry runs op with bounded exponential backoff, retrying only
// transient failures (network errors, 5xx, rate limits).
func (f *Fetcher) withRetry(ctx context.Context, op func() error) error {
	return retry.Do(
		op,
		retry.Context(ctx),
		retry.Attempts(f.retries),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(5*time.Second),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
	)
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var te *transientError
	return errors.As(err, &te)
}
