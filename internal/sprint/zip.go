package sprint

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

var (
	// ErrInvalidArchive is returned when the upload is not a ZIP file.
	ErrInvalidArchive = errors.New("the uploaded file is not a valid ZIP archive")
	// ErrNoCSVFiles is returned when no CSV in the archive could be cleaned.
	ErrNoCSVFiles = errors.New("no valid CSV files found for processing in the ZIP archive")
)

// MaxZipEntrySize caps the uncompressed size of a single archive member.
const MaxZipEntrySize = 256 << 20

// ProcessedFile is one cleaned archive member.
type ProcessedFile struct {
	Source string     `json:"source"`
	Output string     `json:"output"`
	Stats  CleanStats `json:"stats"`
}

// ZipResult lists the cleaned members and the ones that were skipped.
type ZipResult struct {
	Processed []ProcessedFile `json:"processed"`
	Skipped   []string        `json:"skipped,omitempty"`
}

// Duplicates returns the duplicate row count per source file name.
func (r *ZipResult) Duplicates() map[string]int {
	counts := make(map[string]int, len(r.Processed))
	for _, p := range r.Processed {
		counts[path.Base(p.Source)] = p.Stats.Duplicates
	}
	return counts
}

// ProcessedName is the name a cleaned member gets inside the output archive.
func ProcessedName(member string) string {
	dir, file := path.Split(member)
	return dir + "processed_" + file
}

// CleanZip cleans every .csv member of the archive in r and writes the
// results to a new archive on w. Empty and unreadable members are skipped.
func CleanZip(r io.ReaderAt, size int64, w io.Writer) (*ZipResult, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, ErrInvalidArchive
	}

	members := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".csv") {
			continue
		}
		members = append(members, f)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	result := &ZipResult{}
	outputs := make(map[string][]byte, len(members))
	for _, f := range members {
		name := path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))
		if strings.HasPrefix(name, "../") || strings.HasPrefix(name, "/") {
			result.Skipped = append(result.Skipped, f.Name)
			continue
		}

		var buf bytes.Buffer
		stats, err := cleanMember(f, &buf)
		if err != nil {
			result.Skipped = append(result.Skipped, f.Name)
			continue
		}

		out := ProcessedName(name)
		outputs[out] = buf.Bytes()
		result.Processed = append(result.Processed, ProcessedFile{Source: name, Output: out, Stats: stats})
	}

	if len(result.Processed) == 0 {
		return result, ErrNoCSVFiles
	}

	zw := zip.NewWriter(w)
	for _, p := range result.Processed {
		fw, err := zw.Create(p.Output)
		if err != nil {
			return result, fmt.Errorf("failed to add %s to archive: %w", p.Output, err)
		}
		if _, err := fw.Write(outputs[p.Output]); err != nil {
			return result, fmt.Errorf("failed to write %s: %w", p.Output, err)
		}
	}
	if err := zw.Close(); err != nil {
		return result, fmt.Errorf("failed to finish archive: %w", err)
	}
	return result, nil
}

func cleanMember(f *zip.File, w io.Writer) (CleanStats, error) {
	rc, err := f.Open()
	if err != nil {
		return CleanStats{}, err
	}
	defer rc.Close()

	lr := &io.LimitedReader{R: rc, N: MaxZipEntrySize + 1}
	stats, err := CleanCSV(lr, w)
	if err != nil {
		return stats, err
	}
	if lr.N <= 0 {
		return stats, fmt.Errorf("%s exceeds %d bytes", f.Name, MaxZipEntrySize)
	}
	return stats, nil
}
