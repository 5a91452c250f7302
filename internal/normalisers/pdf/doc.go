// Package pdf provides a Normaliser implementation for PDF documents.
// Text is extracted in-process with github.com/ledongthuc/pdf, page by page.
package pdf
