package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type, use .txt, .md or .pdf")
	ErrTooLarge          = errors.New("file is too large")
	ErrNoText            = errors.New("file contains no extractable text")
)

// ExtractDocument returns the plain text of an uploaded document, picking the
// decoder from the file extension. maxBytes <= 0 disables the size limit.
func ExtractDocument(filename string, r io.Reader, maxBytes int64) (string, error) {
	b, err := readLimited(r, maxBytes)
	if err != nil {
		return "", err
	}

	var text string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".text":
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: text file is not valid UTF-8", ErrUnsupportedFormat)
		}
		text = string(b)
	case ".pdf":
		text, err = ExtractText(b)
		if err != nil {
			return "", err
		}
	default:
		return "", ErrUnsupportedFormat
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// ExtractText pulls plain text out of a PDF. An empty document yields "".
func ExtractText(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	return string(out), nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}
	return b, nil
}
