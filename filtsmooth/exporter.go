package filtsmooth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nathanaelbosch/probnum/gauss"
)

// Exporter defines an export interface for belief sequences.
type Exporter interface {
	Write(t float64, b *gauss.Belief) error
	Close() error
}

// CSVExporter writes a time column followed by mean and ±2σ columns per state
// component.
type CSVExporter struct {
	delimiter string
	hdlr      *os.File
}

// NewCSVExporter initializes a new CSV export with one header per state
// component.
func NewCSVExporter(headers []string, path, filename string) (*CSVExporter, error) {
	f, err := os.Create(filepath.Join(path, filename))
	if err != nil {
		return nil, err
	}
	delimiter := ","
	hdr := make([]string, 1+len(headers)*3)
	hdr[0] = "t"
	for i, h := range headers {
		hdr[1+3*i] = h
		hdr[2+3*i] = h + "+2s"
		hdr[3+3*i] = h + "-2s"
	}
	fmt.Fprintf(f, "# Creation date (UTC): %s\n%s\n", time.Now().UTC(), strings.Join(hdr, delimiter))
	return &CSVExporter{delimiter, f}, nil
}

// Write appends one posterior snapshot to the CSV file.
func (e *CSVExporter) Write(t float64, b *gauss.Belief) error {
	mean := b.Mean()
	vals := make([]string, 1+b.Dim()*3)
	vals[0] = fmt.Sprintf("%f", t)
	for i := 0; i < b.Dim(); i++ {
		bound := 2 * b.StdDev(i)
		vals[1+3*i] = fmt.Sprintf("%f", mean.AtVec(i))
		vals[2+3*i] = fmt.Sprintf("%f", mean.AtVec(i)+bound)
		vals[3+3*i] = fmt.Sprintf("%f", mean.AtVec(i)-bound)
	}
	_, err := e.hdlr.WriteString(strings.Join(vals, e.delimiter) + "\n")
	return err
}

// WriteRawLn writes a raw line to the CSV file.
func (e *CSVExporter) WriteRawLn(s string) error {
	_, err := e.hdlr.WriteString(s + "\n")
	return err
}

// Close closes the file.
func (e *CSVExporter) Close() error {
	if err := e.WriteRawLn(fmt.Sprintf("# Closing date (UTC): %s", time.Now().UTC())); err != nil {
		return err
	}
	return e.hdlr.Close()
}
