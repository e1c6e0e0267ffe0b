package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetCRD = `apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: widgets.example.io
spec:
  group: example.io
  names:
    kind: Widget
    plural: widgets
  versions:
    - name: v1
      served: true
      storage: true
      schema:
        openAPIV3Schema:
          type: object
          properties:
            spec:
              type: object
              properties:
                replicas:
                  type: integer
`

const gadgetCRD = `apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: gadgets.example.io
spec:
  group: example.io
  names:
    kind: Gadget
    plural: gadgets
  versions:
    - name: v1
      served: true
      storage: true
      schema:
        openAPIV3Schema:
          type: object
`

const configMapDoc = `apiVersion: v1
kind: ConfigMap
metadata:
  name: not-a-crd
data:
  key: value
`

// newTestFetcher points both GitHub endpoints at the test server.
func newTestFetcher(t *testing.T, srv *httptest.Server) *Fetcher {
	t.Helper()
	f := New(logr.Discard())
	f.client = srv.Client()
	f.apiBase = srv.URL
	f.rawBase = srv.URL
	return f
}

func TestFetchCRDs_DirectYAML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/widgets.yaml", r.URL.Path)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		fmt.Fprint(w, widgetCRD)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	crds, err := f.FetchCRDs(context.Background(), srv.URL+"/widgets.yaml")
	require.NoError(t, err)
	require.Len(t, crds, 1)
	assert.Equal(t, "Widget", crds[0].Spec.Names.Kind)
	assert.Equal(t, "example.io", crds[0].Spec.Group)
}

func TestFetchCRDs_DirectYAMLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such file", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	_, err := f.FetchCRDs(context.Background(), srv.URL+"/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "no such file")
}

func TestFetchCRDs_DirectYAMLBadDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "kind: [unterminated")
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	_, err := f.FetchCRDs(context.Background(), srv.URL+"/broken.yaml")
	require.Error(t, err)
}

func TestFetchCRDs_GitHubTree(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/repos/acme/widgets/contents/config/crds", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v1.2.0", r.URL.Query().Get("ref"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		fmt.Fprintf(w, `[
			{"name": "widget.yaml", "type": "file", "download_url": %q},
			{"name": "README.md", "type": "file", "download_url": %q},
			{"name": "gadget.yml", "type": "file", "download_url": %q},
			{"name": "broken.yaml", "type": "file", "download_url": %q},
			{"name": "notacrd.yaml", "type": "file", "download_url": %q},
			{"name": "nourl.yaml", "type": "file", "download_url": null}
		]`,
			srv.URL+"/raw/widget.yaml",
			srv.URL+"/raw/README.md",
			srv.URL+"/raw/gadget.yml",
			srv.URL+"/raw/broken.yaml",
			srv.URL+"/raw/notacrd.yaml")
	})
	mux.HandleFunc("/raw/widget.yaml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, widgetCRD)
	})
	mux.HandleFunc("/raw/gadget.yml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gadgetCRD)
	})
	mux.HandleFunc("/raw/broken.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flaky backend", http.StatusInternalServerError)
	})
	mux.HandleFunc("/raw/notacrd.yaml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, configMapDoc)
	})
	mux.HandleFunc("/raw/README.md", func(w http.ResponseWriter, r *http.Request) {
		t.Error("non-YAML listing entries must not be downloaded")
	})

	f := newTestFetcher(t, srv)
	crds, err := f.FetchCRDs(context.Background(), "https://github.com/acme/widgets/tree/v1.2.0/config/crds")
	require.NoError(t, err)

	// Failed and non-CRD files drop out; survivors keep listing order.
	require.Len(t, crds, 2)
	assert.Equal(t, "Widget", crds[0].Spec.Names.Kind)
	assert.Equal(t, "Gadget", crds[1].Spec.Names.Kind)
}

func TestFetchCRDs_GitHubBlob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme/widgets/main/config/crds/widget.yaml", r.URL.Path)
		fmt.Fprint(w, widgetCRD+"---\n"+configMapDoc)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	crds, err := f.FetchCRDs(context.Background(), "https://github.com/acme/widgets/blob/main/config/crds/widget.yaml")
	require.NoError(t, err)
	require.Len(t, crds, 1)
	assert.Equal(t, "Widget", crds[0].Spec.Names.Kind)
}

func TestFetchCRDs_UnsupportedSource(t *testing.T) {
	f := New(logr.Discard())
	_, err := f.FetchCRDs(context.Background(), "https://example.com/some/page")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source")
}

func TestFetchCRDs_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, widgetCRD)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(t, srv)
	_, err := f.FetchCRDs(ctx, srv.URL+"/widgets.yaml")
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseGitHubURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		want    githubTarget
		wantErr bool
	}{
		{
			name: "bare repository",
			url:  "https://github.com/acme/widgets",
			want: githubTarget{owner: "acme", repo: "widgets", ref: "main"},
		},
		{
			name: "tree with ref only",
			url:  "https://github.com/acme/widgets/tree/release-1.2",
			want: githubTarget{owner: "acme", repo: "widgets", ref: "release-1.2"},
		},
		{
			name: "tree with nested path",
			url:  "https://github.com/acme/widgets/tree/main/config/crds",
			want: githubTarget{owner: "acme", repo: "widgets", ref: "main", path: "config/crds"},
		},
		{
			name: "blob single file",
			url:  "https://github.com/acme/widgets/blob/v2/crds/widget.yaml",
			want: githubTarget{owner: "acme", repo: "widgets", ref: "v2", path: "crds/widget.yaml", blob: true},
		},
		{
			name:    "owner without repository",
			url:     "https://github.com/acme",
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			require.NoError(t, err)
			got, err := parseGitHubURL(u)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
