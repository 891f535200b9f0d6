package batch

import (
	"github.com/dshills/flsverify/internal/standard"
)

// Status of a batch.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Progress describes how far verification of one batch has come.
type Progress struct {
	BatchID     int    `json:"batch_id"`
	Name        string `json:"name"`
	Status      Status `json:"status"`
	Total       int    `json:"total"`
	Verified    int    `json:"verified"`
	SessionID   int    `json:"session_id,omitempty"`
	ReportPath  string `json:"report_path,omitempty"`
	ResumeFrom  string `json:"resume_from,omitempty"`
	PendingApps int    `json:"pending_applicability_changes"`
}

// Overview is the progress of every batch plus the session to use next.
type Overview struct {
	Batches      []Progress `json:"batches"`
	LastSession  int        `json:"last_session"`
	NextSession  int        `json:"next_session"`
	CurrentBatch int        `json:"current_batch,omitempty"`
}

// ScanProgress derives progress from the latest session report of each
// batch in set.
func ScanProgress(layout standard.Layout, set *Set) (Overview, error) {
	var ov Overview
	for _, def := range set.Batches {
		p := Progress{BatchID: def.ID, Name: def.Name, Status: StatusNotStarted, Total: len(def.Guidelines)}
		reports, err := FindReports(layout, def.ID)
		if err != nil {
			return Overview{}, err
		}
		for _, rf := range reports {
			if rf.Report.SessionID > ov.LastSession {
				ov.LastSession = rf.Report.SessionID
			}
		}
		if n := len(reports); n > 0 {
			latest := reports[n-1]
			latest.Report.Recompute()
			p.SessionID = latest.Report.SessionID
			p.ReportPath = latest.Path
			p.Total = latest.Report.Summary.TotalGuidelines
			p.Verified = latest.Report.Summary.VerifiedCount
			p.PendingApps = len(latest.Report.PendingChanges())
			p.Status = StatusInProgress
			if id, ok := latest.Report.FirstUnverified(); ok {
				p.ResumeFrom = id
			} else {
				p.Status = StatusCompleted
			}
		}
		if ov.CurrentBatch == 0 && p.Status != StatusCompleted {
			ov.CurrentBatch = def.ID
		}
		ov.Batches = append(ov.Batches, p)
	}
	ov.NextSession = ov.LastSession + 1
	return ov, nil
}
