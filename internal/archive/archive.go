// =============================================================================
// Claims Consolidator - Archives
// =============================================================================
//
// Quarterly filings arrive as zip archives and the final outputs leave as
// single-entry zip archives:
//
//   archives/1T2024.zip  -> extracted/1T2024/...
//   output/consolidated.csv -> output/consolidated.zip
//
// The extracted directory keeps the archive stem, which carries the quarter
// the consolidation stage reads back from the path.
//
// =============================================================================

package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsafePath is returned for an archive entry that would land outside the
// extraction directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// ExtractAll extracts every .zip file directly under zipsDir into
// destDir/<archive stem>/. Archives are processed in name order. It returns
// the directories it extracted into.
func ExtractAll(zipsDir, destDir string) ([]string, error) {
	entries, err := os.ReadDir(zipsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", zipsDir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var dirs []string
	for _, name := range names {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		target := filepath.Join(destDir, stem)
		if err := Extract(filepath.Join(zipsDir, name), target); err != nil {
			return dirs, err
		}
		dirs = append(dirs, target)
	}
	return dirs, nil
}

// Extract unpacks one archive into destDir.
//
// RETURNS:
//   - ErrUnsafePath (wrapped) if any entry resolves outside destDir; entries
//     before it may already be written.
func Extract(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		if r != nil {
			r.Close()
		}
		return fmt.Errorf("%w: %s", ErrUnsafePath, zipPath)
	}
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer r.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", destDir, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s in %s", ErrUnsafePath, f.Name, zipPath)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("failed to extract %s from %s: %w", f.Name, zipPath, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Package writes file into a new deflate archive at zipPath as its only
// entry, named after the file's base name. The file must exist.
func Package(file, zipPath string) error {
	src, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}

	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to build entry header: %w", err)
	}
	header.Name = filepath.Base(file)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err == nil {
		_, err = io.Copy(w, src)
	}
	if closeErr := zw.Close(); err == nil {
		err = closeErr
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write archive %s: %w", zipPath, err)
	}
	return nil
}
