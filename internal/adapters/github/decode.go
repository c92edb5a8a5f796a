package github

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sort"
	"strings"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
)

// DecodeLog sniffs a log download. Zip archives are expanded with their entries
// concatenated in name order, gzip streams are decompressed, anything else is text.
func DecodeLog(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return unzipLogs(data)
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return "", fmt.Errorf("gzip: %w", err)
		}
		return string(out), nil
	default:
		return string(data), nil
	}
}

func unzipLogs(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("zip: %w", err)
	}
	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var sb strings.Builder
	for i, f := range files {
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("==> " + f.Name + " <==\n")
		sb.Write(content)
	}
	return sb.String(), nil
}
