package retrievers

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func testSnapshot(t *testing.T, base string) *remoteconfig.Snapshot {
	t.Helper()
	doc := fmt.Sprintf(`
pastebins:
  - name: raw
    prefix: https://paste.example/
    raw: %[1]s/raw/{id}
  - name: page
    prefix: https://page.example/
    mode: html
  - name: spa
    prefix: https://spa.example/
    mode: browser
`, base)
	snap, err := remoteconfig.Parse([]byte(doc))
	require.NoError(t, err)
	return snap
}

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func client() *httpclient.Client {
	return httpclient.New(2*time.Second, 0, time.Millisecond)
}

func TestAttachmentApplies(t *testing.T) {
	snap := testSnapshot(t, "https://unused.example")
	a := Attachment{}
	tests := []struct {
		link string
		want bool
	}{
		{"https://files.example/latest.log", true},
		{"https://files.example/crash-2024.TXT", true},
		{"https://files.example/debug.log.gz", true},
		{"https://cdn.discordapp.com/attachments/1/2/message", true},
		{"https://cdn.discordapp.com/attachments/1/2/screenshot.png", false},
		{"https://files.example/mod.jar", false},
		{"https://paste.example/latest.log", false},
		{"file:///tmp/latest.log", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.Applies(mustURL(t, tt.link), pipeline.Event{}, snap), tt.link)
	}
}

func TestAttachmentFetchInflatesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latest.log":
			_, _ = w.Write([]byte("plain log"))
		case "/debug.log.gz":
			_, _ = w.Write(gz(t, "zipped log"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := Attachment{Client: client()}
	got, err := a.Fetch(context.Background(), mustURL(t, srv.URL+"/latest.log"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"plain log"}, got)

	got, err = a.Fetch(context.Background(), mustURL(t, srv.URL+"/debug.log.gz"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"zipped log"}, got)

	_, err = a.Fetch(context.Background(), mustURL(t, srv.URL+"/missing.log"), nil)
	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestPastebinUsesRawTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("raw paste " + strings.TrimPrefix(r.URL.Path, "/raw/")))
	}))
	defer srv.Close()
	snap := testSnapshot(t, srv.URL)

	p := Pastebin{Client: client()}
	u := mustURL(t, "https://paste.example/Ab12?lang=log")
	require.True(t, p.Applies(u, pipeline.Event{}, snap))
	assert.False(t, p.Applies(mustURL(t, "https://paste.example/"), pipeline.Event{}, snap))
	assert.False(t, p.Applies(mustURL(t, "https://page.example/x"), pipeline.Event{}, snap))

	got, err := p.Fetch(context.Background(), u, snap)
	require.NoError(t, err)
	assert.Equal(t, []string{"raw paste Ab12"}, got)
}

func TestGistReturnsOneBodyPerFileSortedByName(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gists/abc123":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"files":{
				"z-crash.txt":{"filename":"z-crash.txt","content":"crash report"},
				"a-latest.log":{"filename":"a-latest.log","content":"cut","truncated":true,"raw_url":"%s/raw/a-latest.log"}
			}}`, srvURL)
		case "/raw/a-latest.log":
			_, _ = w.Write([]byte("full latest log"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	g := Gist{Client: client(), API: srv.URL}
	u := mustURL(t, "https://gist.github.com/someone/abc123")
	require.True(t, g.Applies(u, pipeline.Event{}, nil))
	assert.False(t, g.Applies(mustURL(t, "https://github.com/someone/abc123"), pipeline.Event{}, nil))
	assert.False(t, g.Applies(mustURL(t, "https://gist.github.com/"), pipeline.Event{}, nil))

	got, err := g.Fetch(context.Background(), u, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"full latest log", "crash report"}, got)
}

const pastePage = `<!doctype html>
<html><head><title>Paste</title></head>
<body><nav>home | new paste</nav>
<article><h1>latest.log</h1><pre>
[12:00:00] [main/INFO]: Loading Minecraft 1.20.1 with Fabric Loader 0.15.7
[12:00:01] [main/INFO]: Loading 42 mods: the paste body continues with enough text to look like an article to the extractor.
[12:00:02] [main/ERROR]: Could not execute entrypoint stage 'main' due to errors, provided by 'examplemod' at 'net.example.Init'!
</pre></article></body></html>`

func TestHTMLExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(pastePage))
	}))
	defer srv.Close()

	snap := testSnapshot(t, "https://unused.example")
	h := HTML{Client: client()}
	assert.True(t, h.Applies(mustURL(t, "https://page.example/xyz"), pipeline.Event{}, snap))
	assert.False(t, h.Applies(mustURL(t, "https://paste.example/xyz"), pipeline.Event{}, snap))

	got, err := h.Fetch(context.Background(), mustURL(t, srv.URL+"/xyz"), snap)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Could not execute entrypoint stage 'main'")
}

func TestExtractTextKeepsEscapedLogText(t *testing.T) {
	u := mustURL(t, "https://page.example/raw")
	got, err := extractText([]byte("<pre>at Foo.&lt;init&gt;(Foo.java:1) &amp; more</pre>"), u)
	require.NoError(t, err)
	assert.Contains(t, got, "at Foo.<init>(Foo.java:1) & more")

	_, err = extractText([]byte("<html><head><script>var x = 1;</script></head><body></body></html>"), u)
	assert.Error(t, err)
}

func TestBrowserRespectsEnabledFlag(t *testing.T) {
	snap := testSnapshot(t, "https://unused.example")
	u := mustURL(t, "https://spa.example/p/1")
	b := &Browser{Render: func(ctx context.Context, rawURL string) (string, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		assert.Equal(t, "https://spa.example/p/1", rawURL)
		return pastePage, nil
	}}
	assert.False(t, b.Applies(u, pipeline.Event{}, snap))
	b.Enabled = true
	assert.True(t, b.Applies(u, pipeline.Event{}, snap))
	assert.False(t, b.Applies(mustURL(t, "https://page.example/p/1"), pipeline.Event{}, snap))

	got, err := b.Fetch(context.Background(), u, snap)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Fabric Loader 0.15.7")
}

func TestFileRetriever(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "latest.log")
	zipped := filepath.Join(dir, "debug.log.gz")
	require.NoError(t, os.WriteFile(plain, []byte("from disk"), 0o600))
	require.NoError(t, os.WriteFile(zipped, gz(t, "from gz"), 0o600))

	f := File{}
	u := &url.URL{Scheme: "file", Path: plain}
	require.True(t, f.Applies(u, pipeline.Event{}, nil))
	assert.False(t, f.Applies(mustURL(t, "https://x.example/latest.log"), pipeline.Event{}, nil))

	got, err := f.Fetch(context.Background(), u, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"from disk"}, got)

	got, err = f.Fetch(context.Background(), &url.URL{Scheme: "file", Path: zipped}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"from gz"}, got)

	_, err = f.Fetch(context.Background(), &url.URL{Scheme: "file", Path: filepath.Join(dir, "nope")}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]string
	failGet bool
}

func (m *memoryCache) Get(_ context.Context, key string) ([]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("cache down")
	}
	b, ok := m.entries[key]
	return b, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, bodies []string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string][]string{}
	}
	m.entries[key] = bodies
	return nil
}

type countingRetriever struct {
	calls int
	err   error
}

func (*countingRetriever) Identifier() string    { return "counting" }
func (*countingRetriever) Order() pipeline.Order { return pipeline.Later }
func (*countingRetriever) Applies(*url.URL, pipeline.Event, *remoteconfig.Snapshot) bool {
	return true
}

func (c *countingRetriever) Fetch(context.Context, *url.URL, *remoteconfig.Snapshot) ([]string, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []string{fmt.Sprintf("body %d", c.calls)}, nil
}

func TestCachedServesRepeatFetches(t *testing.T) {
	inner := &countingRetriever{}
	mem := &memoryCache{}
	c := Cache(inner, mem, 0, nil)
	assert.Equal(t, "counting", c.Identifier())
	assert.Equal(t, pipeline.Later, c.Order())

	ctx := context.Background()
	first, err := c.Fetch(ctx, mustURL(t, "https://paste.example/a?utm_source=x"), nil)
	require.NoError(t, err)
	second, err := c.Fetch(ctx, mustURL(t, "https://PASTE.example/a"), nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	mem.failGet = true
	third, err := c.Fetch(ctx, mustURL(t, "https://paste.example/a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"body 2"}, third)
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	inner := &countingRetriever{err: errors.New("boom")}
	mem := &memoryCache{}
	c := Cache(inner, mem, time.Minute, nil)
	_, err := c.Fetch(context.Background(), mustURL(t, "https://paste.example/a"), nil)
	require.Error(t, err)
	assert.Empty(t, mem.entries)
}

func TestRegisterDefaults(t *testing.T) {
	p := pipeline.New(nil)
	require.NoError(t, RegisterDefaults(p, Deps{Cache: &memoryCache{}}))
	assert.Equal(t, []string{"attachment", "pastebin", "gist", "html", "browser"}, p.Retrievers().Identifiers())

	var dup *pipeline.DuplicateStageError
	require.ErrorAs(t, RegisterDefaults(p, Deps{}), &dup)
	assert.Equal(t, "attachment", dup.Identifier)
}

func TestPipelineWithDefaultRetrievers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("line one\r\nline two"))
	}))
	defer srv.Close()

	p := pipeline.New(nil)
	require.NoError(t, RegisterDefaults(p, Deps{Client: client()}))
	snap := testSnapshot(t, srv.URL)
	out := p.Analyze(context.Background(), snap, "logs: https://paste.example/xyz "+srv.URL+"/latest.log", nil, pipeline.Event{})
	require.Len(t, out, 2)
	assert.Equal(t, "line one\nline two", out[0].Content())
	assert.Equal(t, "https://paste.example/xyz", out[0].Source())
	assert.Equal(t, srv.URL+"/latest.log", out[1].Source())
}
