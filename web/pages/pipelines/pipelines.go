// Package pipelines renders the pipeline import, run and graph page.
package pipelines

import (
	"strconv"

	"github.com/narvanalabs/pipeline-console/web/api"
)

// Fragment is the id of the swappable pipelines container.
const Fragment = "pipelines"

// Data is the pipelines view model.
type Data struct {
	Spec   string
	DryRun bool

	// ImportOutput is the pretty printed import response.
	ImportOutput string
	// ImportMessage is an import failure shown in place of the output.
	ImportMessage string

	PipelineID string
	RunID      string

	// Error is a start-run or graph failure.
	Error string
	// Started is shown when a run started without an id in the response.
	Started string

	Graph *api.Graph
}

func nodeColumns(overlay bool) []string {
	if overlay {
		return []string{"ID", "Name", "Type", "Status", "Attempts"}
	}
	return []string{"ID", "Name", "Type"}
}

func attempts(n api.GraphNode) string {
	if n.Attempts == nil {
		return ""
	}
	return strconv.Itoa(*n.Attempts)
}
