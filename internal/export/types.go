// Package export renders module summaries to PDF and DOCX.
package export

import "errors"

// Format selects the output document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request names the module to export and the format to produce.
type Request struct {
	ModuleID string
	Format   Format
}

// Result is a rendered document ready to stream to the client.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable means the module does not exist or could not be
	// assembled from its sources.
	ErrContentUnavailable = errors.New("export content unavailable")

	// ErrPDFDependencyMissing means no chromium binary is installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

	// ErrDOCXDependencyMissing means pandoc is not installed.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
