package attendance

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/amirhossein5/rollcall/internal/rollno"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/google/uuid"
)

const (
	PhotoPrefix = "Attendance"
	LivePrefix  = "Attendance_Live"

	fileStamp = "2006-01-02_15-04-05"
)

var registerHeader = []string{"Roll No", "Name", "Status", "Date"}

// Publisher writes report artifacts and keeps the CSV register current.
type Publisher struct {
	dir      string
	register string
	log      logger.Logger
}

// NewPublisher writes reports into dir. An empty registerPath disables the CSV register.
func NewPublisher(dir, registerPath string) *Publisher {
	return &Publisher{dir: dir, register: registerPath, log: logger.Named("attendance")}
}

// Publish writes r as <prefix>_<date>.txt and returns the path. Two reports
// with the same second never overwrite each other.
func (p *Publisher) Publish(ctx context.Context, r Report, prefix string) (string, error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	base := fmt.Sprintf("%s_%s", prefix, r.Date.Format(fileStamp))
	f, path, err := createExclusive(filepath.Join(p.dir, base+".txt"))
	if errors.Is(err, fs.ErrExist) {
		f, path, err = createExclusive(filepath.Join(p.dir, base+"_"+uuid.NewString()[:8]+".txt"))
	}
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	p.log.Info(ctx, "report saved", logger.String("path", path),
		logger.Int("present", r.Present), logger.Int("absent", r.Absent))

	if p.register != "" {
		if err := p.writeRegister(r); err != nil {
			// the text artifact is the record; the register is a convenience copy
			p.log.Warn(ctx, "updating attendance register failed", logger.String("path", p.register), logger.Error(err))
		}
	}
	return path, nil
}

func createExclusive(path string) (*os.File, string, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	return f, path, err
}

func (p *Publisher) writeRegister(r Report) error {
	records := [][]string{registerHeader}
	date := r.Date.Format(dateLayout)
	for _, row := range r.Rows {
		records = append(records, []string{row.RollNo, row.Name, row.Status, date})
	}
	return writeCSV(p.register, records)
}

// Retract removes rollNo from the CSV register, if there is one. It reports
// whether any row was removed.
func (p *Publisher) Retract(ctx context.Context, rollNo string) (bool, error) {
	if p.register == "" {
		return false, nil
	}
	key, err := rollno.Canonical(rollNo)
	if err != nil {
		return false, err
	}

	f, err := os.Open(p.register)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	records, err := csv.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		return false, fmt.Errorf("read register: %w", err)
	}

	kept := records[:0]
	removed := false
	for i, rec := range records {
		if i > 0 && len(rec) > 0 {
			if k, err := rollno.Canonical(rec[0]); err == nil && k == key {
				removed = true
				continue
			}
		}
		kept = append(kept, rec)
	}
	if !removed {
		return false, nil
	}
	if err := writeCSV(p.register, kept); err != nil {
		return false, err
	}
	p.log.Info(ctx, "removed from attendance register", logger.String("roll_no", key))
	return true, nil
}

// writeCSV replaces path atomically so a reader never sees half a register.
func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".register-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
