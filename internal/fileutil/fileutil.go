package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// CopyFile streams src to dst using io.Copy with default permissions (0o644).
func CopyFile(src, dst string) error {
	_, err := copyFile(src, dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	return err
}

// copyFile reports whether dst was opened, so callers know whether a failed
// copy left a partial file behind.
func copyFile(src, dst string, flag int) (bool, error) {
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, flag, 0o644)
	if err != nil {
		return false, err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return true, err
	}
	return true, out.Close()
}

// MoveFile renames src to dst, falling back to copy and delete when the
// rename crosses devices. An existing dst is never replaced; the error then
// matches os.ErrExist.
func MoveFile(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("move %s: %w", dst, os.ErrExist)
	}

	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(renameErr, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return renameErr
	}

	created, err := copyFile(src, dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY)
	if err != nil {
		if created {
			_ = os.Remove(dst)
		}
		return err
	}
	return os.Remove(src)
}

// SameFile reports whether a and b name the same existing file.
func SameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
