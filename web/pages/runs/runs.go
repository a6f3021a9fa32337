// Package runs renders the runs list and run detail pages.
package runs

import (
	"fmt"
	"strconv"

	"github.com/narvanalabs/pipeline-console/web/api"
)

// ListData is the runs list view model.
type ListData struct {
	Runs  []api.Run
	Total int
	// Error is shown above the table when the listing failed.
	Error string
}

// DetailData is the run detail view model.
type DetailData struct {
	RunID     int64
	Timeline  []api.BlockEvent
	Progress  *api.Payload
	Artifacts []api.Artifact
}

// DownloadPath is the console route that resolves an artifact download.
func DownloadPath(runID, artifactID int64) string {
	return fmt.Sprintf("/runs/%d/artifacts/%d/download", runID, artifactID)
}

func runPath(id int64) string {
	return "/runs/" + strconv.FormatInt(id, 10)
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

// progressText is the pretty payload, or "No data" when there is none.
func progressText(p *api.Payload) string {
	if p != nil && ((p.IsJSON() && string(p.Raw) != "null") || p.Text != "") {
		return p.Pretty()
	}
	return "No data"
}

func blockRun(a api.Artifact) string {
	if a.BlockRunID == nil {
		return ""
	}
	return strconv.FormatInt(*a.BlockRunID, 10)
}
