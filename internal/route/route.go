// Package route maps console locations, including legacy "#/..." hash links, to views.
package route

import (
	"strconv"
	"strings"
)

// View identifies a console page.
type View string

const (
	ViewRuns      View = "runs"
	ViewRunDetail View = "run"
	ViewPipelines View = "pipelines"
	ViewTools     View = "tools"
	ViewLogs      View = "logs"
)

// Route is a resolved console location.
type Route struct {
	View  View
	RunID int64
}

// Runs is the default route.
var Runs = Route{View: ViewRuns}

// Parse resolves a hash such as "#/runs/42". Unknown or empty input yields Runs.
func Parse(hash string) Route {
	return ParsePath(strings.TrimPrefix(strings.TrimSpace(hash), "#"))
}

// ParsePath resolves a slash separated path such as "/runs/42".
func ParsePath(path string) Route {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Runs
	}

	switch parts[0] {
	case "runs":
		if len(parts) > 1 {
			if id, err := strconv.ParseInt(parts[1], 10, 64); err == nil && id > 0 {
				return Route{View: ViewRunDetail, RunID: id}
			}
		}
		return Runs
	case "pipelines":
		return Route{View: ViewPipelines}
	case "tools":
		return Route{View: ViewTools}
	case "logs":
		return Route{View: ViewLogs}
	default:
		return Runs
	}
}

// Path is the server path that renders the route.
func (r Route) Path() string {
	switch r.View {
	case ViewRunDetail:
		return "/runs/" + strconv.FormatInt(r.RunID, 10)
	case ViewPipelines:
		return "/pipelines"
	case ViewTools:
		return "/tools"
	case ViewLogs:
		return "/logs"
	default:
		return "/runs"
	}
}

// Hash is the legacy "#/..." form of the route.
func (r Route) Hash() string {
	return "#" + r.Path()
}

// Section is the navigation entry the route belongs to.
func (r Route) Section() View {
	if r.View == ViewRunDetail || r.View == "" {
		return ViewRuns
	}
	return r.View
}
