// Package amplitude downloads raw event exports and unpacks them into a
// line-oriented store.
package amplitude

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"golang.org/x/time/rate"

	"github.com/V4T54L/activetime/internal/adapter/metrics"
)

const (
	// maxLineSize bounds a single exported event.
	maxLineSize = 16 << 20
	dayLayout   = "20060102"
	hourLayout  = "20060102T15"
	errBodySize = 512
)

// ErrUnauthorized is returned when the export API rejects the credentials.
var ErrUnauthorized = errors.New("unauthorized")

// LineWriter receives every exported event line.
type LineWriter interface {
	Write(ctx context.Context, line []byte) error
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	SecretKey         string
	BatchDays         int
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client downloads export archives and appends their events to a LineWriter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	out        LineWriter
	metrics    *metrics.ExportMetrics
	logger     *slog.Logger
}

// NewClient creates an export client. m may be nil.
func NewClient(cfg Config, out LineWriter, m *metrics.ExportMetrics, logger *slog.Logger) *Client {
	if cfg.BatchDays < 1 {
		cfg.BatchDays = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		out:     out,
		metrics: m,
		logger:  logger.With("component", "amplitude_export"),
	}
}

// ExportRange downloads every day in [start, end), one request per batch of
// BatchDays days, and returns the total number of lines written.
func (c *Client) ExportRange(ctx context.Context, start, end time.Time) (int, error) {
	start = truncateDay(start)
	end = truncateDay(end)

	total := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, c.cfg.BatchDays) {
		last := day.AddDate(0, 0, c.cfg.BatchDays-1)
		if !last.Before(end) {
			last = end.AddDate(0, 0, -1)
		}
		n, err := c.Export(ctx, day, last)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Export downloads the window from the first hour of first to the last hour
// of last. A 404 means the window holds no data and is not an error.
func (c *Client) Export(ctx context.Context, first, last time.Time) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	window := slog.Group("window", "start", first.Format(dayLayout), "end", last.Format(dayLayout))
	c.logger.Info("downloading export", window)

	req, err := c.newRequest(ctx, first, last)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countRequest("error")
		return 0, fmt.Errorf("failed to send export request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.countRequest("empty")
		c.logger.Info("no data for window", window)
		return 0, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.countRequest("error")
		return 0, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		c.countRequest("error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodySize))
		return 0, fmt.Errorf("export request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	archive, err := os.CreateTemp("", "amplitude-export-*.zip")
	if err != nil {
		return 0, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		archive.Close()
		os.Remove(archive.Name())
	}()

	size, err := io.Copy(archive, resp.Body)
	if err != nil {
		c.countRequest("error")
		return 0, fmt.Errorf("failed to download export archive: %w", err)
	}
	if c.metrics != nil {
		c.metrics.BytesTotal.Add(float64(size))
	}

	lines, err := c.extract(ctx, archive, size)
	if err != nil {
		c.countRequest("error")
		return lines, err
	}
	c.countRequest("ok")
	c.logger.Info("export extracted", window, "archive_bytes", size, "lines", lines)
	return lines, nil
}

func (c *Client) newRequest(ctx context.Context, first, last time.Time) (*http.Request, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid export base url: %w", err)
	}
	q := u.Query()
	q.Set("start", truncateDay(first).Format(hourLayout))
	q.Set("end", truncateDay(last).Add(23*time.Hour).Format(hourLayout))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.SecretKey)
	return req, nil
}

// extract walks every .gz entry of the archive and writes its non-empty lines.
func (c *Client) extract(ctx context.Context, archive io.ReaderAt, size int64) (int, error) {
	zr, err := zip.NewReader(archive, size)
	if err != nil {
		return 0, fmt.Errorf("failed to open export archive: %w", err)
	}

	lines := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".gz") {
			continue
		}
		n, err := c.extractEntry(ctx, f)
		lines += n
		if c.metrics != nil {
			c.metrics.LinesTotal.Add(float64(n))
		}
		if err != nil {
			return lines, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return lines, nil
}

func (c *Client) extractEntry(ctx context.Context, f *zip.File) (int, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lines := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := c.out.Write(ctx, line); err != nil {
			return lines, err
		}
		lines++
	}
	return lines, scanner.Err()
}

func (c *Client) countRequest(result string) {
	if c.metrics != nil {
		c.metrics.RequestsTotal.WithLabelValues(result).Inc()
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
