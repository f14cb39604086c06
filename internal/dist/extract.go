package dist

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrAlreadyInstalled is returned by Extract when the destination
// identity directory already exists and overwrite is false — spec.md
// §4.5's AlreadyInstalled edge case.
var ErrAlreadyInstalled = errors.New("toolchain already installed")

// ErrUnsafeArchivePath is returned when an archive entry would escape
// the extraction root (a "zip slip" attempt via "../" or an absolute
// path).
var ErrUnsafeArchivePath = errors.New("archive entry escapes extraction directory")

// Format identifies an archive's compression container, inferred from
// the asset's filename.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTarGz
	FormatTarZst
)

// FormatFor infers the archive Format from an asset filename.
func FormatFor(name string) Format {
	switch {
	case strings.HasSuffix(name, ".tar.zst"):
		return FormatTarZst
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	default:
		return FormatUnknown
	}
}

// Extract unpacks the archive at archivePath into a fresh staging
// directory under tmpDir, then atomically renames the staged result into
// finalDir (normally Layout.ToolchainDir(identity)). If finalDir already
// exists, it returns ErrAlreadyInstalled unless overwrite is true, in
// which case the old directory is removed first — mirroring the
// install-state-machine's Extracting -> Linking transition in spec.md
// §4.6's diagram, generalized from the teacher's single-binary
// replacement to a whole-directory one.
func Extract(archivePath string, format Format, tmpDir, finalDir string, overwrite bool) (err error) {
	if _, statErr := os.Stat(finalDir); statErr == nil {
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrAlreadyInstalled, finalDir)
		}
		if rmErr := os.RemoveAll(finalDir); rmErr != nil {
			return fmt.Errorf("removing existing install at %s: %w", finalDir, rmErr)
		}
	}

	staging, err := os.MkdirTemp(tmpDir, "elan-extract-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer func() { _ = f.Close() }()

	switch format {
	case FormatZip:
		err = extractZip(archivePath, staging)
	case FormatTarGz:
		err = extractTarGz(f, staging)
	case FormatTarZst:
		err = extractTarZst(f, staging)
	default:
		err = fmt.Errorf("unrecognized archive format for %s", archivePath)
	}
	if err != nil {
		return fmt.Errorf("extracting %s: %w", archivePath, err)
	}

	root, err := singleTopLevelDir(staging)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(finalDir), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", finalDir, err)
	}
	if err = os.Rename(root, finalDir); err != nil {
		return fmt.Errorf("staging install into place: %w", err)
	}
	return nil
}

// singleTopLevelDir returns the path to extract's sole top-level entry
// if staging contains exactly one directory (the common "project-1.2.3/"
// wrapper most release archives use), otherwise it returns staging
// itself unchanged, treating the whole staging tree as the toolchain
// root.
func singleTopLevelDir(staging string) (string, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", fmt.Errorf("reading staging directory: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(staging, entries[0].Name()), nil
	}
	return staging, nil
}

func extractZip(archivePath, destRoot string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, zf := range r.File {
		target, safeErr := safeJoin(destRoot, zf.Name)
		if safeErr != nil {
			return safeErr
		}

		if zf.FileInfo().IsDir() {
			if mkErr := os.MkdirAll(target, 0o755); mkErr != nil {
				return mkErr
			}
			continue
		}

		if mkErr := os.MkdirAll(filepath.Dir(target), 0o755); mkErr != nil {
			return mkErr
		}
		if wErr := writeZipEntry(zf, target); wErr != nil {
			return wErr
		}
	}
	return nil
}

func writeZipEntry(zf *zip.File, target string) (err error) {
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err = io.Copy(out, src); err != nil {
		return err
	}
	if err = os.Chtimes(target, zf.Modified, zf.Modified); err != nil {
		return err
	}
	return os.Chmod(target, readOnlyMode(zf.Mode()))
}

// readOnlyMode strips the write bits from mode, implementing spec.md
// §4.5's "extracted files are made read-only on platforms that support
// it" — os.Chmod is itself a no-op on platforms without POSIX
// permission bits, so no platform branch is needed here.
func readOnlyMode(mode fs.FileMode) fs.FileMode {
	return mode &^ 0o222
}

func extractTarGz(f *os.File, destRoot string) error {
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()
	return extractTar(tar.NewReader(gz), destRoot)
}

func extractTarZst(f *os.File, destRoot string) error {
	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()
	return extractTar(tar.NewReader(zr), destRoot)
}

func extractTar(tr *tar.Reader, destRoot string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, safeErr := safeJoin(destRoot, hdr.Name)
		if safeErr != nil {
			return safeErr
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeTarEntry(tr, target, fs.FileMode(hdr.Mode)); err != nil {
				return err
			}
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			// Device nodes, fifos, etc. have no place in a toolchain
			// distribution archive; skip silently.
		}
	}
}

func writeTarEntry(tr *tar.Reader, target string, mode fs.FileMode) (err error) {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if _, err = io.Copy(out, tr); err != nil {
		return err
	}
	return os.Chmod(target, readOnlyMode(mode))
}

// safeJoin joins name onto root, rejecting any entry whose resolved path
// would land outside root (a "zip slip" attempt).
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, name)
	}
	target := filepath.Join(root, name)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, name)
	}
	return target, nil
}
