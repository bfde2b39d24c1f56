package export

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// packageArchive bundles every output file into one zip.
func packageArchive(files []File) (File, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, f := range files {
		entry, err := w.Create(f.Name)
		if err != nil {
			return File{}, fmt.Errorf("archiving %s: %w", f.Name, err)
		}
		if _, err := entry.Write(f.Data); err != nil {
			return File{}, fmt.Errorf("archiving %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return File{}, err
	}
	return File{Name: "export.zip", Data: buf.Bytes()}, nil
}
