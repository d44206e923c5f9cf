package slide

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRangeServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "slide.tiff", time.Unix(0, 0), bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStream_ReadSeek(t *testing.T) {
	data := slideBytes()
	srv := newRangeServer(t, data)

	st, err := OpenHTTPStream(srv.URL, nil)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, int64(len(data)), st.Size())

	head := make([]byte, 4)
	_, err = io.ReadFull(st, head)
	require.NoError(t, err)
	assert.Equal(t, data[:4], head)
	assert.Equal(t, int64(4), st.Tell())

	pos, err := st.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	chunk := make([]byte, 16)
	_, err = io.ReadFull(st, chunk)
	require.NoError(t, err)
	assert.Equal(t, data[10:26], chunk)

	pos, err = st.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)-4), pos)

	_, err = st.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestHTTPStream_EOF(t *testing.T) {
	data := slideBytes()
	srv := newRangeServer(t, data)

	st, err := OpenHTTPStream(srv.URL, nil)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Seek(int64(len(data)), io.SeekStart)
	require.NoError(t, err)
	_, err = st.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
}

func TestHTTPStream_NoRangeSupport(t *testing.T) {
	// A server that never sends Content-Length on HEAD and ignores Range.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	_, err := OpenHTTPStream(srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support range requests")
}

func TestOpenContainer_HTTP(t *testing.T) {
	srv := newRangeServer(t, slideBytes())

	h, err := OpenContainer(srv.URL + "/slide.tiff")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, 2, h.Reader().NumDirectories())

	dst := make([]uint32, 8*8)
	require.NoError(t, DecodeRegion(h, dst, 0, 0, 8, 8))
	assert.Equal(t, gradientARGB(0, 0), dst[0])
	assert.Equal(t, gradientARGB(7, 7), dst[63])
}
