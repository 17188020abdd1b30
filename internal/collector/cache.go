package collector

import (
	"bytes"
	"crypto/sha1"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"StockHistory/internal/model"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// CacheTransport caches successful GET responses in SQLite. Keys include the current day,
// so entries expire when the date changes.
type CacheTransport struct {
	Base http.RoundTripper
	Now  func() time.Time
	db   *sql.DB
	log  logrus.FieldLogger
}

// NewCacheTransport opens (or creates) the cache database at path.
func NewCacheTransport(path string, base http.RoundTripper, log logrus.FieldLogger) (*CacheTransport, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS http_cache (
		key        TEXT PRIMARY KEY,
		status     INTEGER NOT NULL,
		body       BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return &CacheTransport{Base: base, Now: time.Now, db: db, log: log}, nil
}

func (c *CacheTransport) key(req *http.Request) string {
	k := fmt.Sprintf("%s %s %s", c.Now().Format(model.DayLayout), req.Method, req.URL.String())
	return fmt.Sprintf("%x", sha1.Sum([]byte(k)))
}

func (c *CacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return c.Base.RoundTrip(req)
	}
	key := c.key(req)

	var status int
	var body []byte
	err := c.db.QueryRowContext(req.Context(), `SELECT status, body FROM http_cache WHERE key = ?`, key).Scan(&status, &body)
	switch {
	case err == nil:
		c.log.WithField("host", req.URL.Host).Debug("cache hit")
		return cachedResponse(req, status, body), nil
	case !errors.Is(err, sql.ErrNoRows):
		c.log.WithError(err).Warn("cache lookup failed")
	}

	resp, err := c.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.log.Debugf("%v %v%v %v", req.Method, req.URL.Host, req.URL.Path, resp.Status)
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if _, err := c.db.ExecContext(req.Context(), `INSERT INTO http_cache (key, status, body, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET status = excluded.status, body = excluded.body, fetched_at = excluded.fetched_at`,
		key, resp.StatusCode, body, c.Now().Unix()); err != nil {
		c.log.WithError(err).Warn("cache store failed")
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// Close releases the cache database.
func (c *CacheTransport) Close() error {
	return c.db.Close()
}

func cachedResponse(req *http.Request, status int, body []byte) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
