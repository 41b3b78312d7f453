// Package chapters renames the per-chapter files the downloader writes when
// splitting by chapter markers.
//
// Raw names embed the title, a chapter index of inconsistent width and the
// bracketed video id, e.g. "My_Talk_-_7_-_Intro_[xyz].mp3". The clean name
// drops the id, turns underscores into spaces and pads the index to two
// digits: "My Talk - 07 - Intro.mp3".
package chapters

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cwygoda/chaptercast/internal/domain"
	"github.com/cwygoda/chaptercast/internal/fileutil"
	"github.com/cwygoda/chaptercast/internal/textutil"
)

// indexPattern finds the chapter index: a digit run preceded by " -" or
// " - " and followed by " - " or the end of the stem. Dashes inside a word,
// as in "COVID-19" or "2023-05-01", never start an index. The surrounding
// separators are part of the match so they can be rewritten.
var indexPattern = regexp.MustCompile(`\s-\s?(\d+)(?:\s-\s|\s*$)`)

// cleanStem removes the bracketed id and underscores from a file stem.
func cleanStem(stem, id string) string {
	if id != "" {
		stem = strings.ReplaceAll(stem, "["+id+"]", "")
	}
	stem = strings.ReplaceAll(stem, "_", " ")
	return textutil.CollapseSpaces(stem)
}

func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// IsChapterName reports whether a file name carries a chapter index.
func IsChapterName(name, id string) bool {
	stem, _ := splitExt(filepath.Base(name))
	return indexPattern.MatchString(cleanStem(stem, id))
}

// padIndex renders a chapter index with at least two digits.
func padIndex(digits string) string {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return digits
	}
	return fmt.Sprintf("%02d", n)
}

// CleanName returns the destination name for a raw chapter file. Names
// without a chapter index only get the id and underscore cleanup.
func CleanName(name, id string) string {
	return cleanName(name, id, "")
}

// cleanName is CleanName with the index search starting after title when the
// cleaned stem begins with it, so digits inside the title are never taken for
// the chapter index.
func cleanName(name, id, title string) string {
	stem, ext := splitExt(filepath.Base(name))
	stem = cleanStem(stem, id)

	loc := findIndex(stem, title)
	if loc == nil {
		return stem + ext
	}

	parts := make([]string, 0, 3)
	if prefix := strings.TrimSpace(stem[:loc[0]]); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, padIndex(stem[loc[2]:loc[3]]))
	if rest := strings.TrimSpace(stem[loc[1]:]); rest != "" {
		parts = append(parts, rest)
	}
	return strings.Join(parts, " - ") + ext
}

// findIndex returns the submatch indexes of the chapter index in stem.
func findIndex(stem, title string) []int {
	offset := 0
	if title != "" && strings.HasPrefix(stem, title+" ") {
		offset = len(title)
	}
	loc := indexPattern.FindStringSubmatchIndex(stem[offset:])
	if loc == nil {
		return nil
	}
	for i := range loc {
		loc[i] += offset
	}
	return loc
}

// titleStem is the cleaned stem of the pre-split main file, falling back to
// the resolved title.
func titleStem(main string, ref domain.VideoRef) string {
	if main != "" {
		stem, _ := splitExt(filepath.Base(main))
		return cleanStem(stem, ref.ID)
	}
	return cleanStem(ref.Title, ref.ID)
}

type move struct {
	src string
	dst string
}

// Rename moves every raw file that carries a chapter index into workDir under
// its clean name and returns the new paths in order. Destinations are checked
// before anything is moved: two files mapping to the same name, or a
// destination already taken by a different file, fail with
// *domain.RenameCollisionError and leave every file in place.
func Rename(rawFiles []string, ref domain.VideoRef, workDir string) ([]string, error) {
	return rename(rawFiles, ref, workDir, titleStem("", ref))
}

func rename(rawFiles []string, ref domain.VideoRef, workDir, title string) ([]string, error) {
	var moves []move
	claimed := make(map[string]string)

	for _, src := range rawFiles {
		name := filepath.Base(src)
		if !IsChapterName(name, ref.ID) {
			continue
		}
		dst := filepath.Join(workDir, cleanName(name, ref.ID, title))

		if other, ok := claimed[dst]; ok {
			return nil, &domain.RenameCollisionError{Source: src, Destination: dst, Other: other}
		}
		claimed[dst] = src

		if fileutil.Exists(dst) && !fileutil.SameFile(src, dst) {
			return nil, &domain.RenameCollisionError{Source: src, Destination: dst}
		}
		moves = append(moves, move{src: src, dst: dst})
	}

	if len(moves) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	var out []string
	for _, m := range moves {
		if !fileutil.SameFile(m.src, m.dst) {
			if err := fileutil.MoveFile(m.src, m.dst); err != nil {
				return out, fmt.Errorf("move %s: %w", m.src, err)
			}
		}
		out = append(out, m.dst)
	}
	sort.Strings(out)
	return out, nil
}

// Apply renames the chapter files of outcome and removes the pre-split main
// file. Single-file outcomes are returned unchanged.
func Apply(outcome domain.Outcome, ref domain.VideoRef) (domain.Outcome, error) {
	if outcome.Kind != domain.ChapterSet {
		return outcome, nil
	}
	files, err := rename(outcome.Files, ref, outcome.WorkDir, titleStem(outcome.Main, ref))
	if err != nil {
		return outcome, err
	}
	if len(files) == 0 {
		return domain.NewSingleFile(outcome.WorkDir, outcome.Main), nil
	}

	if outcome.Main != "" && fileutil.Exists(outcome.Main) && !contains(files, outcome.Main) {
		if err := os.Remove(outcome.Main); err != nil {
			return outcome, fmt.Errorf("remove main file: %w", err)
		}
	}
	return domain.NewChapterSet(outcome.WorkDir, outcome.Main, files), nil
}

func contains(paths []string, path string) bool {
	for _, p := range paths {
		if p == path || fileutil.SameFile(p, path) {
			return true
		}
	}
	return false
}
