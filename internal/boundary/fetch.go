package boundary

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kerryhatcher/vote-match/internal/resilience"
)

// Fetcher downloads boundary archives and extracts the shapefile inside.
// Census TIGER vintages are published over both https and ftp, so both
// schemes are supported.
type Fetcher struct {
	destDir     string
	timeout     time.Duration
	concurrency int
	client      *http.Client
}

// NewFetcher creates a fetcher writing under destDir. Zero timeout means
// 10 minutes; zero concurrency means 4 parallel archives.
func NewFetcher(destDir string, timeout time.Duration, concurrency int) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Fetcher{
		destDir:     destDir,
		timeout:     timeout,
		concurrency: concurrency,
		client:      &http.Client{Timeout: timeout},
	}
}

// FetchAll downloads the given archive URLs in parallel and returns the
// extracted .shp paths in input order. One failed archive fails the whole
// fetch; partially written files under destDir are reused on the next run.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]string, error) {
	paths := make([]string, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			shpPath, err := f.Fetch(ctx, u)
			if err != nil {
				return err
			}
			paths[i] = shpPath
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// Fetch downloads one ZIP archive, extracts it, and returns the path of the
// .shp file inside. An already-downloaded archive is not re-fetched.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	log := zap.L().With(
		zap.String("component", "boundary.fetch"),
		zap.String("url", rawURL),
	)

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "boundary: parse archive url %s", rawURL)
	}

	if err := os.MkdirAll(f.destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "boundary: create dest dir")
	}

	zipName := filepath.Base(u.Path)
	zipPath := filepath.Join(f.destDir, zipName)

	if info, statErr := os.Stat(zipPath); statErr == nil && info.Size() > 0 {
		log.Debug("archive already downloaded", zap.String("path", zipPath))
	} else {
		log.Info("downloading boundary archive")
		cfg := resilience.DefaultRetryConfig()
		cfg.OnRetry = resilience.RetryLogger("boundary", "download "+zipName)
		err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
			switch u.Scheme {
			case "http", "https":
				return f.downloadHTTP(ctx, rawURL, zipPath)
			case "ftp":
				return f.downloadFTP(u, zipPath)
			default:
				return eris.Errorf("boundary: unsupported scheme %q", u.Scheme)
			}
		})
		if err != nil {
			return "", eris.Wrapf(err, "boundary: download %s", rawURL)
		}
	}

	extractDir := filepath.Join(f.destDir, strings.TrimSuffix(zipName, ".zip"))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "boundary: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return "", eris.Wrapf(err, "boundary: extract %s", zipName)
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrapf(err, "boundary: locate shapefile in %s", zipName)
	}
	return shpPath, nil
}

func (f *Fetcher) downloadHTTP(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("download returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	return writeToFile(dest, resp.Body)
}

func (f *Fetcher) downloadFTP(u *url.URL, dest string) error {
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout))
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "ftp dial"), 0)
	}
	defer conn.Quit() //nolint:errcheck

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return eris.Wrap(err, "ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "ftp retrieve %s", u.Path), 0)
	}
	defer resp.Close() //nolint:errcheck

	return writeToFile(dest, resp)
}

func writeToFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "create %s", dest)
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, r); err != nil {
		// Leave no truncated archive behind to be mistaken for a cached copy.
		_ = os.Remove(dest)
		return eris.Wrapf(err, "write %s", dest)
	}
	return nil
}

// extractZIP flattens a ZIP archive into destDir. Shapefile archives carry a
// flat set of sidecar files, so directory structure is discarded.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, entry := range r.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(entry.Name))

		rc, err := entry.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", entry.Name)
		}
		err = writeToFile(destPath, rc)
		_ = rc.Close()
		if err != nil {
			return eris.Wrapf(err, "extract %s", entry.Name)
		}
	}
	return nil
}

func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
