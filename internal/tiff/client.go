package tiff

// Client is the pull-based I/O contract the reader decodes through. It
// mirrors the classic client-open vtable: counts and positions instead of
// errors, so any seekable byte source can be plugged in without caring
// about this package's error types.
//
// Read fills p and returns the number of bytes actually read; 0 signals
// end of data or a read failure. Write is present only for contract
// completeness; a source that is not writable returns 0. Seek returns the
// new absolute position, or -1 on failure. Close returns 0 on success and
// -1 otherwise. Size reports the total size of the backing store in bytes.
type Client interface {
	Read(p []byte) int
	Write(p []byte) int
	Seek(offset int64, whence int) int64
	Close() int
	Size() int64
}

// readAt seeks to off and reads exactly len(p) bytes through the client.
func readAt(c Client, off int64, p []byte) bool {
	if c.Seek(off, 0) != off {
		return false
	}
	total := 0
	for total < len(p) {
		n := c.Read(p[total:])
		if n <= 0 {
			return false
		}
		total += n
	}
	return true
}
