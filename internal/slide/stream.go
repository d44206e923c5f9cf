package slide

import (
	"io"
	"os"
	"strings"
)

// Stream is a seekable byte source for one container. Implementations are
// not safe for concurrent use; a stream belongs to exactly one decoder
// handle and is closed together with it. It is always the creator's
// responsibility to close a stream that was not handed to a handle.
type Stream interface {
	io.Reader
	// Seek repositions the stream and returns the new absolute position.
	Seek(offset int64, whence int) (int64, error)
	// Tell returns the current absolute position.
	Tell() int64
	Close() error
	// Size reports the total size of the backing resource in bytes,
	// queried from the resource itself rather than any buffering layer.
	Size() int64
}

// OpenStream opens locator as an HTTP(S) URL or a local file path.
func OpenStream(locator string) (Stream, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return OpenHTTPStream(locator, nil)
	}
	return OpenFileStream(locator)
}

// FileStream reads a container from the local filesystem.
type FileStream struct {
	f    *os.File
	pos  int64
	size int64
}

// OpenFileStream opens path for reading.
func OpenFileStream(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileStream{f: f, size: fi.Size()}, nil
}

func (s *FileStream) Read(p []byte) (int, error) {
	n, err := s.f.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *FileStream) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		return -1, err
	}
	s.pos = pos
	return pos, nil
}

func (s *FileStream) Tell() int64 { return s.pos }

func (s *FileStream) Close() error { return s.f.Close() }

// Size queries the backing file directly so an external truncation or
// append is visible; the size recorded at open time is only a fallback.
func (s *FileStream) Size() int64 {
	if fi, err := s.f.Stat(); err == nil {
		return fi.Size()
	}
	return s.size
}
