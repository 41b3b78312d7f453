// Package packager turns a pipeline outcome into the artifact handed to the
// caller: the audio file itself, or a flat zip of the chapter directory.
package packager

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cwygoda/chaptercast/internal/domain"
)

// Package passes single files through and archives chapter sets. The zip is
// written next to the work dir as <work dir name>.zip and the work dir is
// removed afterwards.
func Package(outcome domain.Outcome) (domain.Artifact, error) {
	if outcome.Kind != domain.ChapterSet {
		return domain.Artifact{Path: outcome.Main}, nil
	}

	dir := filepath.Clean(outcome.WorkDir)
	dest := filepath.Join(filepath.Dir(dir), filepath.Base(dir)+".zip")
	if err := ZipDir(dir, dest); err != nil {
		return domain.Artifact{}, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return domain.Artifact{}, &domain.PackagingError{Dir: dir, Reason: "remove work dir", Err: err}
	}
	return domain.Artifact{Path: dest, Archived: true}, nil
}

// ZipDir writes every regular file directly inside dir to a zip at dest,
// without directory entries.
func ZipDir(dir, dest string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &domain.PackagingError{Dir: dir, Reason: "read dir", Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return &domain.PackagingError{Dir: dir, Reason: "nothing to archive"}
	}

	if err := writeZip(dir, dest, names); err != nil {
		_ = os.Remove(dest)
		return &domain.PackagingError{Dir: dir, Reason: "write archive", Err: err}
	}
	return nil
}

func writeZip(dir, dest string, names []string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		if err := addFile(zw, filepath.Join(dir, name), name); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	// audio payloads are already compressed
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
