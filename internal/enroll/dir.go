package enroll

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

var photoExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// FileResult is the outcome for one file of a bulk enrollment.
type FileResult struct {
	File    string
	Outcome Outcome
	Err     error
}

// Summary totals a bulk enrollment.
type Summary struct {
	Results   []FileResult
	Enrolled  int
	Failed    int
	Unmatched []string
}

// ParseFilename splits "<roll>_<name>.jpg" into its parts.
func ParseFilename(file string) (roll, name string, ok bool) {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	roll, name, ok = strings.Cut(base, "_")
	roll, name = strings.TrimSpace(roll), strings.TrimSpace(name)
	if !ok || roll == "" || name == "" {
		return "", "", false
	}
	return roll, name, true
}

// EnrollDir enrolls every <roll>_<name> photo in dir, in name order. Files
// that fail are reported in the summary and do not stop the run. A nil
// progress writer hides the progress bar.
func (e *Enroller) EnrollDir(ctx context.Context, dir string, progress io.Writer) (Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("read enrollment dir: %w", err)
	}

	var files []string
	var sum Summary
	for _, entry := range entries {
		if entry.IsDir() || !photoExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		if _, _, ok := ParseFilename(entry.Name()); !ok {
			sum.Unmatched = append(sum.Unmatched, entry.Name())
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		roll, name, _ := ParseFilename(file)
		out, err := e.EnrollFile(ctx, roll, name, filepath.Join(dir, file))
		sum.Results = append(sum.Results, FileResult{File: file, Outcome: out, Err: err})
		if err != nil {
			sum.Failed++
			e.log.Warn(ctx, "enrollment failed", logger.String("file", file), logger.Error(err))
		} else {
			sum.Enrolled++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return sum, nil
}
