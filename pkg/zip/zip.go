package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Entry is one file of an archive; Open is called when the entry is written
type Entry struct {
	Name     string
	Modified time.Time
	Open     func() (io.ReadCloser, error)
}

// Bytes returns an entry holding data
func Bytes(name string, modified time.Time, data []byte) Entry {
	return Entry{
		Name:     name,
		Modified: modified,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Write streams entries as a zip archive into w
func Write(w io.Writer, entries []Entry) error {
	writer := zip.NewWriter(w)

	for _, e := range entries {
		if err := writeEntry(writer, e); err != nil {
			writer.Close()
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish zip: %w", err)
	}
	return nil
}

func writeEntry(writer *zip.Writer, e Entry) error {
	name := path.Clean(strings.TrimPrefix(e.Name, "/"))
	if name == "." || strings.HasPrefix(name, "../") || name == ".." {
		return fmt.Errorf("invalid zip entry name %q", e.Name)
	}

	src, err := e.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer src.Close()

	file, err := writer.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: e.Modified,
	})
	if err != nil {
		return fmt.Errorf("failed to create file in zip: %w", err)
	}

	if _, err := io.Copy(file, src); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}
