package export

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// compress wraps the encoded artifact in the requested container and
// returns the adjusted filename and content type. Gzip wraps the raw
// stream; zip embeds the original file under its own name.
func compress(data []byte, c report.Compression, filename string) ([]byte, string, string, error) {
	switch c {
	case report.CompressionGzip:
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Name = filename
		if _, err := gz.Write(data); err != nil {
			return nil, "", "", errors.NewEncodingError("COMPRESSION_FAILED",
				"gzip compression failed").WithCause(err)
		}
		if err := gz.Close(); err != nil {
			return nil, "", "", errors.NewEncodingError("COMPRESSION_FAILED",
				"gzip finalization failed").WithCause(err)
		}
		return buf.Bytes(), filename + ".gz", "application/gzip", nil

	case report.CompressionZip:
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		entry, err := zw.Create(filename)
		if err != nil {
			return nil, "", "", errors.NewEncodingError("COMPRESSION_FAILED",
				"zip entry creation failed").WithCause(err)
		}
		if _, err := entry.Write(data); err != nil {
			return nil, "", "", errors.NewEncodingError("COMPRESSION_FAILED",
				"zip compression failed").WithCause(err)
		}
		if err := zw.Close(); err != nil {
			return nil, "", "", errors.NewEncodingError("COMPRESSION_FAILED",
				"zip finalization failed").WithCause(err)
		}
		return buf.Bytes(), filename + ".zip", "application/zip", nil

	default:
		return nil, "", "", errors.NewEncodingError("UNSUPPORTED_COMPRESSION",
			fmt.Sprintf("compression %s is not supported", c))
	}
}
