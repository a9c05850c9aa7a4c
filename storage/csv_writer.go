package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

// MimeTypeCSV is the content type of every export document.
const MimeTypeCSV = "text/csv;charset=utf-8"

var ErrEmptyExport = errors.New("nothing to export")

// Column is one fixed export column: its header and how a row renders it.
type Column[T any] struct {
	Header string
	Value  func(T) string
}

// Headers returns the header row of a column spec.
func Headers[T any](cols []Column[T]) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}

// EscapeCell wraps v in quotes, doubling any quote inside it.
func EscapeCell(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// CSVWriter writes a quoted, newline-joined delimited document. The header
// row goes out with the first data row, so a writer that never receives a
// row leaves its destination untouched.
type CSVWriter struct {
	mu          sync.Mutex
	out         *bufio.Writer
	header      []string
	wroteHeader bool
	rows        int
}

// NewCSVWriter wraps w with the given header row.
func NewCSVWriter(w io.Writer, header []string) *CSVWriter {
	return &CSVWriter{out: bufio.NewWriter(w), header: header}
}

// WriteRow writes one data row.
func (c *CSVWriter) WriteRow(cells []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.wroteHeader {
		if err := c.writeLine(c.header, false); err != nil {
			return fmt.Errorf("csv: write header: %w", err)
		}
		c.wroteHeader = true
	}
	if err := c.writeLine(cells, true); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}
	c.rows++
	return nil
}

func (c *CSVWriter) writeLine(cells []string, leadingNewline bool) error {
	if leadingNewline {
		if err := c.out.WriteByte('\n'); err != nil {
			return err
		}
	}
	for i, cell := range cells {
		if i > 0 {
			if err := c.out.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := c.out.WriteString(EscapeCell(cell)); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns the number of data rows written.
func (c *CSVWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// Flush pushes buffered output to the destination.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Flush()
}

// Serialize renders rows under cols into w as they arrive. It returns
// ErrEmptyExport, having written nothing, when rows is empty.
func Serialize[T any](w io.Writer, rows iter.Seq[T], cols []Column[T]) (int, error) {
	cw := NewCSVWriter(w, Headers(cols))
	cells := make([]string, len(cols))
	for row := range rows {
		for i, col := range cols {
			cells[i] = col.Value(row)
		}
		if err := cw.WriteRow(cells); err != nil {
			return cw.Rows(), err
		}
	}
	if err := cw.Flush(); err != nil {
		return cw.Rows(), fmt.Errorf("csv: flush: %w", err)
	}
	if cw.Rows() == 0 {
		return 0, ErrEmptyExport
	}
	return cw.Rows(), nil
}

// FileName builds "<kind>-<scope>-<YYYY-MM-DD>.csv".
func FileName(kind, scope string, now time.Time) string {
	scope = Slug(scope)
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("%s-%s-%s.csv", Slug(kind), scope, now.Format("2006-01-02"))
}

// Slug lowercases s and replaces runs of anything but letters, digits and
// "+" with a single dash.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// FormatTime renders t in loc with layout; the zero time renders empty.
func FormatTime(t time.Time, loc *time.Location, layout string) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(layout)
}

// LazyFile creates its file, and any missing directories, on the first
// Write. An export that produces no rows therefore produces no file.
type LazyFile struct {
	path string
	file *os.File
}

// NewLazyFile returns a LazyFile for path.
func NewLazyFile(path string) *LazyFile {
	return &LazyFile{path: path}
}

func (l *LazyFile) Write(p []byte) (int, error) {
	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
			return 0, fmt.Errorf("csv: create output dir: %w", err)
		}
		f, err := os.Create(l.path)
		if err != nil {
			return 0, fmt.Errorf("csv: create file %q: %w", l.path, err)
		}
		l.file = f
	}
	return l.file.Write(p)
}

// Created reports whether the file was written to.
func (l *LazyFile) Created() bool { return l.file != nil }

// Path returns the destination path.
func (l *LazyFile) Path() string { return l.path }

// Close closes the file if it was created.
func (l *LazyFile) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
