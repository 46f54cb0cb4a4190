package dataset

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FetchOptions configures the raw-data fetcher.
type FetchOptions struct {
	Timeout        time.Duration // default 60s
	RequestsPerSec float64       // HTTP rate limit, default 2
}

// Fetcher downloads raw source files over HTTP or FTP.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewFetcher creates a Fetcher with the given options.
func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 2
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		timeout: opts.Timeout,
	}
}

// Fetch downloads rawURL into destPath, dispatching on the URL scheme.
// The file is written to a temporary location and atomically published.
// Returns bytes written.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destPath string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		body, err = f.openHTTP(ctx, rawURL)
	case "ftp":
		body, err = f.openFTP(ctx, u)
	default:
		return 0, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeStream(destPath, body)
}

func (f *Fetcher) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: get %s", rawURL)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, eris.Errorf("fetch: %s returned %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}

func (f *Fetcher) openFTP(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return nil, eris.New("fetch: empty path in ftp url")
	}

	zap.L().Debug("fetch: ftp connect", zap.String("host", host), zap.String("path", u.Path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: ftp dial")
	}

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "fetch: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrapf(err, "fetch: ftp retrieve %s", u.Path)
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// ftpConnReader ties the FTP data connection lifetime to the reader.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetch: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetch: quit ftp connection")
	}
	return nil
}

func writeStream(destPath string, r io.Reader) (int64, error) {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "fetch: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetch: create temp file")
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, eris.Wrapf(err, "fetch: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, eris.Wrapf(err, "fetch: close %s", tmpName)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return n, eris.Wrapf(err, "fetch: publish %s", destPath)
	}
	return n, nil
}
