// Package layouts provides the page shell and shared widgets of the console.
// The markup lives in .templ files; regenerate with templ generate from the
// repository root after editing them.
package layouts

//go:generate templ generate -path ..

import (
	twmerge "github.com/Oudwins/tailwind-merge-go"

	"github.com/narvanalabs/pipeline-console/internal/route"
)

// Base classes shared by the pages.
const (
	CardClass   = "rounded-lg border border-slate-800 bg-slate-900 p-4"
	InputClass  = "rounded-md border border-slate-700 bg-slate-950 px-2 py-1 text-sm text-slate-100"
	ButtonClass = "inline-flex items-center rounded-md px-3 py-1.5 text-sm font-medium bg-slate-800 text-slate-100 hover:bg-slate-700"
	SmallClass  = "text-xs text-slate-400"
	PreClass    = "rounded-md bg-slate-950 p-3 text-xs font-mono overflow-auto"
	RowClass    = "flex flex-wrap items-center gap-3"
	TableClass  = "w-full text-sm"
	THClass     = "text-left text-slate-400 font-medium py-2 px-2 border-b border-slate-800"
	TDClass     = "py-2 px-2 border-b border-slate-800"
	badgeClass  = "inline-block rounded-full px-2 py-0.5 text-xs font-semibold"
)

// Class merges class lists, later classes overriding conflicting earlier ones.
func Class(classes ...string) string {
	return twmerge.Merge(classes...)
}

// ButtonVariant selects a button color.
type ButtonVariant string

const (
	ButtonDefault ButtonVariant = ""
	ButtonPrimary ButtonVariant = "primary"
	ButtonDanger  ButtonVariant = "danger"
)

// ButtonClasses returns the classes of a button variant.
func ButtonClasses(v ButtonVariant) string {
	switch v {
	case ButtonPrimary:
		return Class(ButtonClass, "bg-indigo-600 hover:bg-indigo-500")
	case ButtonDanger:
		return Class(ButtonClass, "bg-red-700 hover:bg-red-600")
	default:
		return ButtonClass
	}
}

// BadgeClasses returns the classes for a status bucket (ok, err, run).
func BadgeClasses(bucket string) string {
	switch bucket {
	case "ok":
		return Class(badgeClass, "bg-emerald-900 text-emerald-300")
	case "err":
		return Class(badgeClass, "bg-red-900 text-red-300")
	default:
		return Class(badgeClass, "bg-amber-900 text-amber-300")
	}
}

// PageData is what every page shell needs.
type PageData struct {
	Title   string
	APIBase string
}

type navItem struct {
	view  route.View
	label string
}

var nav = []navItem{
	{route.ViewRuns, "Runs"},
	{route.ViewPipelines, "Pipelines"},
	{route.ViewTools, "Tools"},
	{route.ViewLogs, "Live Logs"},
}

func (n navItem) path() string {
	return route.Route{View: n.view}.Path()
}

func navClass(active bool) string {
	cls := "text-sm text-slate-400 hover:text-slate-100"
	if active {
		return Class(cls, "text-slate-100 font-semibold")
	}
	return cls
}

func pageTitle(title string) string {
	if title == "" {
		return "Pipeline Orchestrator"
	}
	return title + " · Pipeline Orchestrator"
}

// keyPlaceholder never echoes the stored key; it only says whether one is set.
func keyPlaceholder(set bool) string {
	if set {
		return "Saved; enter a new key to replace"
	}
	return "X-API-Key"
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func cellClass(extra []string) string {
	return Class(append([]string{TDClass}, extra...)...)
}
