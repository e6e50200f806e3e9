// =============================================================================
// Claims Consolidator - Source Retrieval
// =============================================================================
//
// The regulator publishes quarterly archives as a plain directory listing:
//
//   <base>/2024/1T2024.zip
//   <base>/2024/2T2024.zip
//   <base>/2023/...
//
// This package walks the listing and downloads the latest archives. Every
// request goes through one rate limiter so a full fetch stays polite.
//
// =============================================================================

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/ginjaninja78/claims-consolidator/internal/config"
	"github.com/ginjaninja78/claims-consolidator/pkg/utils"
)

// ErrUnexpectedStatus indicates a non-200 response.
var ErrUnexpectedStatus = errors.New("unexpected status code")

var yearDirPattern = regexp.MustCompile(`^\d{4}/$`)

// Client fetches listings and files from the publication host.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *slog.Logger
}

// NewClient creates a Client from the fetch configuration.
func NewClient(cfg config.FetchConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// get performs a throttled GET. The caller closes the body.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, rawURL)
	}
	return resp, nil
}

// Links returns the href of every anchor on the page, in document order.
func (c *Client) Links(ctx context.Context, pageURL string) ([]string, error) {
	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return parseLinks(resp.Body)
}

func parseLinks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if strings.EqualFold(attr.Key, "href") {
					links = append(links, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links, nil
}

// LatestArchives returns the URLs of the n most recent archives: year
// directories newest first, archives within a year newest first.
func (c *Client) LatestArchives(ctx context.Context, baseURL string, n int) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	links, err := c.Links(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	var years []string
	for _, l := range links {
		if yearDirPattern.MatchString(l) {
			years = append(years, l)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))

	var archives []string
	for _, y := range years {
		if len(archives) >= n {
			break
		}
		yearURL := base.ResolveReference(&url.URL{Path: y})

		yearLinks, err := c.Links(ctx, yearURL.String())
		if err != nil {
			return nil, err
		}

		var zips []string
		for _, l := range yearLinks {
			if strings.HasSuffix(strings.ToLower(l), ".zip") {
				ref, err := url.Parse(l)
				if err != nil {
					c.logger.Warn("skipping malformed link", "link", l, "error", err)
					continue
				}
				zips = append(zips, yearURL.ResolveReference(ref).String())
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(zips)))
		archives = append(archives, zips...)
	}

	if len(archives) > n {
		archives = archives[:n]
	}
	return archives, nil
}

// Download saves every URL into dir under its base name. Files already
// present are skipped. It returns the paths of the files it wrote.
func (c *Client) Download(ctx context.Context, urls []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var written []string
	for _, u := range urls {
		parsed, err := url.Parse(u)
		if err != nil {
			return written, fmt.Errorf("invalid url %q: %w", u, err)
		}
		target := filepath.Join(dir, path.Base(parsed.Path))

		if utils.FileExists(target) {
			c.logger.Info("archive already present", "path", target)
			continue
		}

		if err := c.DownloadFile(ctx, u, target); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	return written, nil
}

// DownloadFile streams one URL into target through a temporary file, so an
// interrupted transfer never leaves a partial file behind.
func (c *Client) DownloadFile(ctx context.Context, rawURL, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", rawURL, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	c.logger.Info("downloaded", "url", rawURL, "path", target, "bytes", n)
	return nil
}
