//go:build nopdf

package ingest

// PDFSupported reports whether this build can read PDF files.
func PDFSupported() bool { return false }

func extractPDF([]byte) (string, error) {
	return "", ErrPDFUnavailable
}
