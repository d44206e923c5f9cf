package tiff

// Baseline and extension tag codes used by the reader.
const (
	TagImageWidth        = 256
	TagImageLength       = 257
	TagBitsPerSample     = 258
	TagCompression       = 259
	TagPhotometric       = 262
	TagImageDescription  = 270
	TagStripOffsets      = 273
	TagOrientation       = 274
	TagSamplesPerPixel   = 277
	TagRowsPerStrip      = 278
	TagStripByteCounts   = 279
	TagTileWidth         = 322
	TagTileLength        = 323
	TagTileOffsets       = 324
	TagTileByteCounts    = 325
	TagExtraSamples      = 338
	TagSampleFormat      = 339
	TagJPEGTables        = 347
)

// Compression scheme codes.
const (
	CompressionNone       = 1
	CompressionCCITTRLE   = 2
	CompressionCCITTFax3  = 3
	CompressionCCITTFax4  = 4
	CompressionLZW        = 5
	CompressionJPEGOld    = 6
	CompressionJPEG       = 7
	CompressionDeflate    = 8
	CompressionDeflateOld = 32946
	CompressionPackBits   = 32773
)

// OrientationTopLeft is the only storage orientation the render path
// accepts; RGBACheck rejects directories declaring any other.
const OrientationTopLeft = 1

// Photometric interpretation codes.
const (
	PhotometricMinIsWhite = 0
	PhotometricMinIsBlack = 1
	PhotometricRGB        = 2
	PhotometricPalette    = 3
	PhotometricYCbCr      = 6
)

// Field types from the TIFF 6.0 and BigTIFF specifications.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
	typeLong8     = 16
	typeSLong8    = 17
	typeIFD8      = 18
)

// typeSizes maps a field type to its per-value byte width; 0 means unknown.
var typeSizes = [19]int{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8,
	typeSByte: 1, typeUndefined: 1, typeSShort: 2, typeSLong: 4,
	typeSRational: 8, typeFloat: 4, typeDouble: 8,
	typeLong8: 8, typeSLong8: 8, typeIFD8: 8,
}
