package workspace

import (
	"path/filepath"
	"time"

	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
)

// RunReport records how the last run against a workspace ended.
type RunReport struct {
	Timestamp  time.Time `json:"timestamp"`
	ModuleName string    `json:"moduleName"`
	Version    string    `json:"version"`
	Stage      string    `json:"stage"`
	Error      string    `json:"error,omitempty"`
	Archive    string    `json:"archive,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
}

// Succeeded reports whether the run finished without error.
func (r RunReport) Succeeded() bool {
	return r.Error == ""
}

// ReportPath returns the run report file for workspace.
func ReportPath(workspace string) string {
	return filepath.Clean(workspace) + ".run.json"
}

// WriteReport stores r next to workspace, replacing any earlier report.
func WriteReport(workspace string, r RunReport) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return fileutil.WriteJSON(ReportPath(workspace), r)
}

// ReadReport loads the report of the last run against workspace.
func ReadReport(workspace string) (RunReport, error) {
	return fileutil.ReadJSON[RunReport](ReportPath(workspace))
}
