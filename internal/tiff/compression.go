package tiff

// CompressionSupported reports whether this package can decode pixel data
// stored with the given compression scheme code. Old-style JPEG, the CCITT
// fax family and PackBits are deliberately absent.
func CompressionSupported(code uint64) bool {
	switch code {
	case CompressionNone, CompressionLZW, CompressionJPEG,
		CompressionDeflate, CompressionDeflateOld:
		return true
	}
	return false
}
