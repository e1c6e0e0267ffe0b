// Package fetch downloads schema sources over HTTP: CustomResourceDefinition
// manifests from direct URLs or GitHub repositories, and the published
// Kubernetes OpenAPI document.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/nickelgen/nickelgen/internal/walker"
)

const (
	userAgent      = "nickelgen"
	requestTimeout = 30 * time.Second

	// maxConcurrentDownloads bounds parallel manifest downloads from one
	// repository listing.
	maxConcurrentDownloads = 5
)

// Fetcher downloads schema sources. Construct with New; the zero value has
// no HTTP client.
type Fetcher struct {
	client  *http.Client
	log     logr.Logger
	apiBase string
	rawBase string
}

// New returns a Fetcher with a 30 second request timeout.
func New(log logr.Logger) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: requestTimeout},
		log:     log,
		apiBase: "https://api.github.com",
		rawBase: "https://raw.githubusercontent.com",
	}
}

// FetchCRDs downloads CustomResourceDefinition manifests. Direct .yaml and
// .yml URLs fetch one file; github.com tree URLs list the directory through
// the contents API and download every YAML file in it; github.com blob URLs
// fetch the one file they name. Documents of other kinds are skipped with a
// logged warning, never silently.
func (f *Fetcher) FetchCRDs(ctx context.Context, source string) ([]*walker.CRD, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse source URL: %w", err)
	}
	switch {
	case strings.TrimPrefix(u.Host, "www.") == "github.com":
		return f.fetchGitHub(ctx, u)
	case strings.HasSuffix(u.Path, ".yaml"), strings.HasSuffix(u.Path, ".yml"):
		data, err := f.get(ctx, source, "")
		if err != nil {
			return nil, err
		}
		return f.parseManifests(source, data)
	default:
		return nil, fmt.Errorf("unsupported source %q: need a .yaml/.yml URL or a github.com tree or blob URL", source)
	}
}

// githubTarget addresses a subtree or single file of a repository.
type githubTarget struct {
	owner string
	repo  string
	ref   string
	path  string
	blob  bool
}

// parseGitHubURL reads the owner/repo[/tree/REF[/PATH]] and
// owner/repo/blob/REF/PATH web URL forms. A bare owner/repo URL means the
// repository root at the default branch.
func parseGitHubURL(u *url.URL) (githubTarget, error) {
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return githubTarget{}, fmt.Errorf("github URL %q does not name a repository", u)
	}
	t := githubTarget{owner: segs[0], repo: segs[1], ref: "main"}
	if len(segs) < 4 {
		return t, nil
	}
	switch segs[2] {
	case "tree":
		t.ref = segs[3]
		t.path = strings.Join(segs[4:], "/")
	case "blob":
		t.ref = segs[3]
		t.path = strings.Join(segs[4:], "/")
		t.blob = t.path != ""
	}
	return t, nil
}

func (f *Fetcher) fetchGitHub(ctx context.Context, u *url.URL) ([]*walker.CRD, error) {
	target, err := parseGitHubURL(u)
	if err != nil {
		return nil, err
	}
	if target.blob {
		rawURL := fmt.Sprintf("%s/%s/%s/%s/%s", f.rawBase, target.owner, target.repo, target.ref, target.path)
		data, err := f.get(ctx, rawURL, "")
		if err != nil {
			return nil, err
		}
		return f.parseManifests(target.path, data)
	}

	entries, err := f.listContents(ctx, target)
	if err != nil {
		return nil, err
	}
	var files []contentsEntry
	for _, e := range entries {
		if strings.HasSuffix(e.Name, ".yaml") || strings.HasSuffix(e.Name, ".yml") {
			files = append(files, e)
		}
	}
	f.log.Info("listed repository directory",
		"repo", target.owner+"/"+target.repo, "path", target.path, "ref", target.ref, "yamlFiles", len(files))
	return f.downloadAll(ctx, files)
}

// contentsEntry is the subset of a GitHub contents API item the fetcher
// reads.
type contentsEntry struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

func (f *Fetcher) listContents(ctx context.Context, target githubTarget) ([]contentsEntry, error) {
	api := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		f.apiBase, target.owner, target.repo, target.path, url.QueryEscape(target.ref))
	data, err := f.get(ctx, api, "application/vnd.github.v3+json")
	if err != nil {
		return nil, err
	}
	var entries []contentsEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode contents listing: %w", err)
	}
	return entries, nil
}

// downloadAll fetches the listed files with bounded concurrency. A file
// that fails to download or decode is logged and dropped; the rest of the
// batch still lands. Results follow listing order, not completion order.
func (f *Fetcher) downloadAll(ctx context.Context, files []contentsEntry) ([]*walker.CRD, error) {
	results := make([][]*walker.CRD, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDownloads)
	for i, entry := range files {
		g.Go(func() error {
			if entry.DownloadURL == "" {
				f.log.Info("skipping entry without a download URL", "name", entry.Name)
				return nil
			}
			data, err := f.get(ctx, entry.DownloadURL, "")
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.log.Info("skipping manifest that failed to download", "name", entry.Name, "reason", err.Error())
				return nil
			}
			crds, err := f.parseManifests(entry.Name, data)
			if err != nil {
				f.log.Info("skipping manifest that failed to decode", "name", entry.Name, "reason", err.Error())
				return nil
			}
			results[i] = crds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var crds []*walker.CRD
	for _, part := range results {
		crds = append(crds, part...)
	}
	return crds, nil
}

// parseManifests decodes a manifest stream, logging skipped non-CRD
// documents.
func (f *Fetcher) parseManifests(source string, data []byte) ([]*walker.CRD, error) {
	crds, skipped, err := walker.ParseCRDs(source, data)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		f.log.Info("skipped non-CRD documents", "source", source, "count", skipped)
	}
	return crds, nil
}

// get performs one GET with the fetcher's User-Agent and returns the body.
// A non-2xx response is an error carrying the first line of the body.
func (f *Fetcher) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("GET %s: %s", rawURL, resp.Status)
		if line := firstLine(body); line != "" {
			msg += ": " + line
		}
		return nil, errors.New(msg)
	}
	return body, nil
}

func firstLine(body []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(body)), "\n")
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}
