package tfrecord

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// FileWriter writes arrays of one writer style to a record file inside a
// spec's store directory. Records go to a temporary file that is renamed
// into place on Close.
type FileWriter struct {
	style Style
	path  string
	tmp   *os.File
	buf   *bufio.Writer
	rw    *RecordWriter
	count int
}

// Create opens a writer for name inside storeDir. name may contain
// subdirectories but cannot escape storeDir.
func Create(storeDir, name string, style Style) (*FileWriter, error) {
	path, err := securejoin.SecureJoin(storeDir, name)
	if err != nil {
		return nil, fmt.Errorf("resolving %s in %s: %w", name, storeDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".nabu-*.tfrecord.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	buf := bufio.NewWriter(tmp)
	return &FileWriter{
		style: style,
		path:  path,
		tmp:   tmp,
		buf:   buf,
		rw:    NewRecordWriter(buf),
	}, nil
}

// Write encodes a and appends it as one record.
func (fw *FileWriter) Write(a Array) error {
	payload, err := fw.style.Encode(a)
	if err != nil {
		return fmt.Errorf("record %d: %w", fw.count, err)
	}
	if err := fw.rw.Write(payload); err != nil {
		return fmt.Errorf("record %d: %w", fw.count, err)
	}
	fw.count++
	return nil
}

// Count returns the number of records written so far.
func (fw *FileWriter) Count() int {
	return fw.count
}

// Path returns the final location of the record file.
func (fw *FileWriter) Path() string {
	return fw.path
}

// Close flushes the records and moves the file into place.
func (fw *FileWriter) Close() error {
	tmpPath := fw.tmp.Name()
	err := fw.buf.Flush()
	if err == nil {
		err = fw.tmp.Sync()
	}
	if cerr := fw.tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finishing %s: %w", fw.path, err)
	}
	if err := os.Rename(tmpPath, fw.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to %s: %w", fw.path, err)
	}
	return nil
}

// Abort discards everything written.
func (fw *FileWriter) Abort() {
	_ = fw.tmp.Close()
	_ = os.Remove(fw.tmp.Name())
}

// ReadFile decodes every record of path with the given style.
func ReadFile(path string, style Style) ([]Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out []Array
	err = Each(f, style, func(_ int, a Array) error {
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

// Each decodes the records of r in order and calls fn for each of them.
func Each(r io.Reader, style Style, fn func(i int, a Array) error) error {
	rr := NewRecordReader(r)
	for i := 0; ; i++ {
		payload, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		a, err := style.Decode(payload)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := fn(i, a); err != nil {
			return err
		}
	}
}
