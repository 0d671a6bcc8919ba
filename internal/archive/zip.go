package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Entry is one file written into a training archive.
type Entry struct {
	Name string
	Data []byte
}

// TrainingImage is a downloaded selfie with its caption.
type TrainingImage struct {
	Data      []byte
	Extension string
	Caption   string
}

// TrainingEntries lays images out as image_<i>.<ext> with a matching
// image_<i>.txt caption, numbered from 1 in input order.
func TrainingEntries(images []TrainingImage) []Entry {
	entries := make([]Entry, 0, len(images)*2)
	for i, img := range images {
		ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(img.Extension)), ".")
		if ext == "" {
			ext = "jpg"
		}
		base := fmt.Sprintf("image_%d", i+1)
		entries = append(entries,
			Entry{Name: base + "." + ext, Data: img.Data},
			Entry{Name: base + ".txt", Data: []byte(img.Caption)},
		)
	}
	return entries
}

// Build writes entries into an in-memory zip.
func Build(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errors.New("archive: no entries")
	}

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(entries))
	modified := time.Now()
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			_ = zw.Close()
			return nil, errors.New("archive: entry without name")
		}
		if _, dup := seen[name]; dup {
			_ = zw.Close()
			return nil, fmt.Errorf("archive: duplicate entry %q", name)
		}
		seen[name] = struct{}{}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("archive: create %s: %w", name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("archive: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close: %w", err)
	}
	return buf.Bytes(), nil
}
