package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/claims-consolidator/internal/config"
)

func testClient() *Client {
	return NewClient(config.FetchConfig{
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		UserAgent:         "test-agent",
	}, nil)
}

func listing(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><pre>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`+"\n", l, l)
	}
	b.WriteString("</pre></body></html>")
	return b.String()
}

func newListingServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/pda/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing("../", "2022/", "2024/", "2023/", "README.txt"))
	})
	mux.HandleFunc("/pda/2024/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing("../", "1T2024.zip", "2T2024.zip", "notes.pdf"))
	})
	mux.HandleFunc("/pda/2023/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing("3T2023.zip", "4T2023.ZIP", "2T2023.zip"))
	})
	mux.HandleFunc("/pda/2022/", func(w http.ResponseWriter, r *http.Request) {
		t.Error("older years should not be listed once enough archives are found")
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		fmt.Fprint(w, "payload:"+r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestParseLinks(t *testing.T) {
	links, err := parseLinks(strings.NewReader(`<p><A HREF="a.zip">a</A><a>none</a><a href="b/">b</a></p>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.zip", "b/"}, links)
}

func TestLatestArchives(t *testing.T) {
	srv := newListingServer(t, nil)
	c := testClient()

	urls, err := c.LatestArchives(context.Background(), srv.URL+"/pda/", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/pda/2024/2T2024.zip",
		srv.URL + "/pda/2024/1T2024.zip",
		srv.URL + "/pda/2023/4T2023.ZIP",
	}, urls)
}

func TestLatestArchivesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := testClient().LatestArchives(context.Background(), srv.URL+"/", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestDownloadSkipsExisting(t *testing.T) {
	var hits int32
	srv := newListingServer(t, &hits)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.zip"), []byte("kept"), 0o644))

	written, err := testClient().Download(context.Background(), []string{
		srv.URL + "/files/new.zip",
		srv.URL + "/files/old.zip",
	}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "new.zip")}, written)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	data, err := os.ReadFile(filepath.Join(dir, "new.zip"))
	require.NoError(t, err)
	assert.Equal(t, "payload:/files/new.zip", string(data))

	kept, err := os.ReadFile(filepath.Join(dir, "old.zip"))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(kept))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files are left behind")
}

func TestDownloadFileCancelled(t *testing.T) {
	srv := newListingServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := filepath.Join(t.TempDir(), "x.zip")
	err := testClient().DownloadFile(ctx, srv.URL+"/files/x.zip", target)
	require.Error(t, err)
	assert.NoFileExists(t, target)
}
