// Package attendance reconciles a present set against the enrolled roster and
// renders the attendance report.
package attendance

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amirhossein5/rollcall/internal/rollno"
	"github.com/amirhossein5/rollcall/internal/store"
)

const (
	// Absent is the status of anyone not in the present set.
	Absent = "Absent"

	DefaultTitle = "Attendance Report"
	LiveTitle    = "Live Session Attendance Report"

	ruleWidth  = 45
	timeLayout = "15:04:05"
	dateLayout = "2006-01-02 15:04:05"
)

// Row is one roster entry in a report.
type Row struct {
	RollNo string
	Name   string
	// Status is the capture time for present people, Absent otherwise.
	Status string
}

// Report lists the whole roster exactly once, in roster order.
type Report struct {
	Title      string
	Date       time.Time
	Rows       []Row
	Registered int
	Present    int
	Absent     int
}

// Reconcile marks every roster entry present or absent. Present-set entries
// that are no longer enrolled are dropped.
func Reconcile(roster []store.Identity, present *PresentSet, captured time.Time) Report {
	r := Report{
		Title:      DefaultTitle,
		Date:       captured,
		Rows:       make([]Row, 0, len(roster)),
		Registered: len(roster),
	}
	stamp := captured.Format(timeLayout)

	for _, id := range roster {
		key, err := rollno.Canonical(id.RollNo)
		if err != nil {
			key = id.RollNo
		}
		status := Absent
		if present != nil && present.Has(key) {
			status = stamp
			r.Present++
		}
		r.Rows = append(r.Rows, Row{RollNo: key, Name: id.Name, Status: status})
	}
	r.Absent = r.Registered - r.Present
	return r
}

// WriteTo renders the fixed text layout that downstream tooling parses.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	title := r.Title
	if title == "" {
		title = DefaultTitle
	}

	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "Date: %s\n", r.Date.Format(dateLayout))
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&b, "%-15s | %-20s | %-10s\n", "Roll No", "Name", "Status")
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "%-15s | %-20s | %-10s\n", row.RollNo, row.Name, row.Status)
	}
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&b, "Total Registered: %d\n", r.Registered)
	fmt.Fprintf(&b, "Present: %d\n", r.Present)
	fmt.Fprintf(&b, "Absent: %d\n", r.Absent)

	return b.WriteTo(w)
}

func (r Report) String() string {
	var sb strings.Builder
	_, _ = r.WriteTo(&sb)
	return sb.String()
}
