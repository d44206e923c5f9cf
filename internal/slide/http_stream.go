package slide

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPStream reads a container over HTTP(S) using range requests, so a
// remote slide is never downloaded whole. The server must support byte
// ranges and report a total size.
type HTTPStream struct {
	url    string
	client *fasthttp.Client
	pos    int64
	size   int64
	closed bool
}

func defaultHTTPClient() *fasthttp.Client {
	return &fasthttp.Client{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// OpenHTTPStream probes url for its size and returns a positioned stream.
// A nil client gets a default with 30 second timeouts.
func OpenHTTPStream(url string, client *fasthttp.Client) (*HTTPStream, error) {
	if client == nil {
		client = defaultHTTPClient()
	}
	s := &HTTPStream{url: url, client: client, size: -1}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodHead)
	if err := client.Do(req, resp); err == nil &&
		resp.StatusCode() == fasthttp.StatusOK && resp.Header.ContentLength() >= 0 {
		s.size = int64(resp.Header.ContentLength())
		return s, nil
	}

	// No usable HEAD; probe with a one-byte range and parse Content-Range.
	req.Reset()
	resp.Reset()
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderRange, "bytes=0-0")
	if err := client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("slide: probing %s: %w", url, err)
	}
	if resp.StatusCode() != fasthttp.StatusPartialContent {
		return nil, fmt.Errorf("slide: %s: server does not support range requests (status %d)", url, resp.StatusCode())
	}
	var first, last int64
	if _, err := fmt.Sscanf(string(resp.Header.Peek(fasthttp.HeaderContentRange)),
		"bytes %d-%d/%d", &first, &last, &s.size); err != nil {
		return nil, fmt.Errorf("slide: %s: unparsable Content-Range: %w", url, err)
	}
	return s, nil
}

func (s *HTTPStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	if s.pos >= s.size {
		return 0, io.EOF
	}
	end := s.pos + int64(len(p))
	if end > s.size {
		end = s.size
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderRange, fmt.Sprintf("bytes=%d-%d", s.pos, end-1))
	if err := s.client.Do(req, resp); err != nil {
		return 0, fmt.Errorf("slide: reading %s: %w", s.url, err)
	}
	body := resp.Body()
	switch resp.StatusCode() {
	case fasthttp.StatusPartialContent:
	case fasthttp.StatusOK:
		// Server ignored the range; slice the full body ourselves.
		if s.pos >= int64(len(body)) {
			return 0, io.EOF
		}
		body = body[s.pos:]
	default:
		return 0, fmt.Errorf("slide: reading %s: status %d", s.url, resp.StatusCode())
	}
	n := copy(p, body)
	s.pos += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *HTTPStream) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = s.size + offset
	default:
		return -1, fmt.Errorf("slide: bad seek whence %d", whence)
	}
	if pos < 0 {
		return -1, fmt.Errorf("slide: seek before start of %s", s.url)
	}
	s.pos = pos
	return pos, nil
}

func (s *HTTPStream) Tell() int64 { return s.pos }

func (s *HTTPStream) Close() error {
	s.closed = true
	return nil
}

// Size reports the length learned from the initial probe; HTTP gives no
// cheaper per-call equivalent of a fresh stat.
func (s *HTTPStream) Size() int64 { return s.size }
