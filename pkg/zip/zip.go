package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is a single file inside an archive.
type Entry struct {
	Name     string
	Data     []byte
	Modified time.Time

	err error
}

// JSONEntry builds an indented JSON entry. Marshal errors surface when the
// archive is written.
func JSONEntry(name string, v any) Entry {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Entry{Name: name, err: err}
	}
	return Entry{Name: name, Data: data}
}

// Archive writes entries into an in-memory zip.
func Archive(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		if e.err != nil {
			return nil, fmt.Errorf("zip: entry %s: %w", e.Name, e.err)
		}
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: e.Modified}
		if hdr.Modified.IsZero() {
			hdr.Modified = time.Now().UTC()
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}
