package pack

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// zipDir compresses the working directory into a single zip file, entry
// paths relative to the directory root.
func zipDir(fs afero.Fs, dir, target string) error {
	out, err := fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	err = afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		in, err := fs.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		_, err = io.Copy(w, in)

		return err
	})
	if err != nil {
		zw.Close()

		return fmt.Errorf("cannot archive %s: %w", dir, err)
	}

	return zw.Close()
}

// imageDir captures the working directory into a single-file image. The
// image is an uncompressed tar stream, one file that deployment tooling
// mounts or expands as a unit.
func imageDir(fs afero.Fs, dir, target string) error {
	out, err := fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create image: %w", err)
	}
	defer out.Close()

	tw := tar.NewWriter(out)

	err = afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}

		hdr := &tar.Header{
			Name:    filepath.ToSlash(rel),
			Mode:    0o644,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if info.IsDir() {
			hdr.Name += "/"
			hdr.Mode = 0o755
			hdr.Size = 0
			hdr.Typeflag = tar.TypeDir
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		in, err := fs.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		_, err = io.Copy(tw, in)

		return err
	})
	if err != nil {
		tw.Close()

		return fmt.Errorf("cannot image %s: %w", dir, err)
	}

	return tw.Close()
}

// extractPayload opens the package binary as a zip container (packages are
// self-extracting executables with the payload appended as a zip archive)
// and extracts it into dest. Binaries without a readable payload archive
// fail here and the caller skips the package.
func extractPayload(fs afero.Fs, binaryPath, dest string) error {
	data, err := afero.ReadFile(fs, binaryPath)
	if err != nil {
		return fmt.Errorf("cannot read package binary: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("package payload is not extractable: %w", err)
	}

	for _, f := range zr.File {
		rel := filepath.FromSlash(f.Name)
		if strings.Contains(rel, "..") {
			continue
		}

		targetPath := filepath.Join(dest, rel)
		if f.FileInfo().IsDir() {
			if err := fs.MkdirAll(targetPath, 0o755); err != nil {
				return err
			}

			continue
		}

		if err := fs.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}

		if err := afero.WriteFile(fs, targetPath, content, 0o644); err != nil {
			return err
		}
	}

	return nil
}

// copyTree copies a file or directory tree from src into dest, preserving
// the relative layout below src.
func copyTree(fs afero.Fs, src, dest string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return copyFile(fs, src, filepath.Join(dest, filepath.Base(src)))
	}

	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}

		targetPath := filepath.Join(dest, rel)
		if info.IsDir() {
			return fs.MkdirAll(targetPath, 0o755)
		}

		return copyFile(fs, path, targetPath)
	})
}

func copyFile(fs afero.Fs, src, dest string) error {
	if err := fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()

	if copyErr != nil {
		return copyErr
	}

	return closeErr
}
