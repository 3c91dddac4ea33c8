// Package sink persists extracted order events to a CSV artifact.
package sink

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/blueogin/trade-data-collector/internal/source/evm"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Header is the fixed first row of every artifact.
var Header = []string{"tx.origin", "event type", "txn hash", "timestamp"}

// Initialize creates or truncates path and writes the header row.
func Initialize(path string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("initialize %s: %w", path, err)
	}
	defer closeFile(f, &err)

	buf, err := encode([][]string{Header})
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}

// Append writes one row per event to an initialized artifact, in order.
// All rows are written with a single write and synced before returning; if the
// write fails the file is truncated back to its previous size.
func Append(path string, events []evm.OrderEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	defer closeFile(f, &err)

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, Row(ev))
	}
	buf, err := encode(rows)
	if err != nil {
		return err
	}

	if _, werr := f.Write(buf); werr != nil {
		if terr := f.Truncate(size); terr != nil {
			return fmt.Errorf("write rows: %w (rollback: %v)", werr, terr)
		}
		return fmt.Errorf("write rows: %w", werr)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}

// Row renders an event as CSV fields: lowercase 0x hex for address and hash, decimal timestamp.
func Row(ev evm.OrderEvent) []string {
	return []string{
		hexutil.Encode(ev.Origin.Bytes()),
		ev.Kind.String(),
		hexutil.Encode(ev.TxHash.Bytes()),
		strconv.FormatUint(ev.Timestamp, 10),
	}
}

// Verify reports whether path has the exact header and expectedRows non-empty data rows.
func Verify(path string, expectedRows int) bool {
	n, err := CountRows(path)
	if err != nil {
		return false
	}
	return n == expectedRows
}

// CountRows checks the header of path and returns the number of non-empty data rows.
// Malformed records are skipped.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return 0, fmt.Errorf("unexpected header %q", header)
	}

	count := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !emptyRow(rec) {
			count++
		}
	}
	return count, nil
}

// File binds the sink operations to one artifact path.
type File struct {
	path string
}

// NewFile returns a sink writing to path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

func (f *File) Initialize() error { return Initialize(f.path) }

func (f *File) Append(events []evm.OrderEvent) error { return Append(f.path, events) }

func encode(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	return buf.Bytes(), nil
}

func closeFile(f *os.File, err *error) {
	if cerr := f.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("close %s: %w", f.Name(), cerr)
	}
}

func emptyRow(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}
