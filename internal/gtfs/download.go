package gtfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"stationwatch.transitboard.org/internal/logging"
)

// StatusError is returned when a remote source answers with a non-200 status.
type StatusError struct {
	URL        string
	Status     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %s", e.URL, e.Status)
}

// EncodingError reports a body that arrived intact but could not be inflated
// according to its Content-Encoding.
type EncodingError struct {
	Encoding string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid %s response body: %v", e.Encoding, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

func isRemoteSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// readSource returns the bytes behind source, which is either an http(s) URL
// or a local path. Remote bodies may be gzip-encoded; the size limit applies
// to both the received and the decoded payload.
func readSource(ctx context.Context, client *http.Client, source string, headers map[string]string, maxSize int64, logger *slog.Logger) ([]byte, error) {
	if !isRemoteSource(source) {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("error reading local file: %w", err)
		}
		if int64(len(b)) > maxSize {
			return nil, fmt.Errorf("%s exceeds size limit of %d bytes", source, maxSize)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	// Requesting gzip explicitly disables the transport's transparent
	// decompression, so the body is inflated below.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &StatusError{URL: source, Status: resp.Status, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(b)) > maxSize {
		return nil, fmt.Errorf("response from %s exceeds size limit of %d bytes", source, maxSize)
	}

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return gunzip(b, source, maxSize, logger)
	}
	return b, nil
}

// gunzip inflates an already received body. Failures here are about the
// payload, not the transport.
func gunzip(b []byte, source string, maxSize int64, logger *slog.Logger) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, &EncodingError{Encoding: "gzip", Err: err}
	}
	defer logging.SafeCloseWithLogging(zr, logger, "gzip_reader")

	out, err := io.ReadAll(io.LimitReader(zr, maxSize+1))
	if err != nil {
		return nil, &EncodingError{Encoding: "gzip", Err: err}
	}
	if int64(len(out)) > maxSize {
		return nil, fmt.Errorf("decoded response from %s exceeds size limit of %d bytes", source, maxSize)
	}
	return out, nil
}
