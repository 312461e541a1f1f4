// Package jsonl reads and writes line-delimited JSON files.
package jsonl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
)

const maxLine = 16 << 20

// LineError describes a line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

// Decode reads one JSON value per non-blank line. Lines that fail to decode
// are skipped and returned as LineErrors so callers can warn and count them.
func Decode[T any](r io.Reader) ([]T, []LineError, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	var (
		out []T
		bad []LineError
		n   int
	)
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var v T
		if err := sonic.UnmarshalString(line, &v); err != nil {
			bad = append(bad, LineError{Line: n, Err: err})
			continue
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return out, bad, err
	}
	return out, bad, nil
}

// ReadFile opens path and decodes it. A missing file surfaces as an error
// wrapping os.ErrNotExist.
func ReadFile[T any](path string) ([]T, []LineError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	out, bad, err := Decode[T](f)
	if err != nil {
		return nil, bad, fmt.Errorf("read %s: %w", path, err)
	}
	return out, bad, nil
}

// Encode writes each value on its own line.
func Encode[T any](w io.Writer, rows []T) error {
	bw := bufio.NewWriter(w)
	for i := range rows {
		b, err := sonic.Marshal(rows[i])
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile creates parent directories and replaces path with rows.
func WriteFile[T any](path string, rows []T) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Encode(f, rows)
}
