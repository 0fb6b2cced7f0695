package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"
	"stationwatch.transitboard.org/internal/appconf"
	"stationwatch.transitboard.org/internal/logging"
	"stationwatch.transitboard.org/internal/set"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

var dumper = spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}

type debugData struct {
	Title string
	Pre   string
}

func writeDebugData(w http.ResponseWriter, r *http.Request, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := debugTemplate.Execute(w, debugData{Title: title, Pre: dumper.Sdump(data)})
	if err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to execute debug template", err,
			slog.String("component", "webui"))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

type interestDump struct {
	RouteNames []string
	RouteIDs   []string
	StationIDs []string
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}
	if webUI.RequestHasInvalidAPIKey(r) {
		http.Error(w, "permission denied", http.StatusUnauthorized)
		return
	}

	var data any
	var title string

	switch r.URL.Query().Get("dataType") {
	case "routes":
		data = webUI.Catalog.Routes()
		title = "GTFS Static - Routes"
	case "stops":
		data = webUI.Catalog.Stops()
		title = "GTFS Static - Stops"
	case "interest":
		data = interestDump{
			RouteNames: webUI.Config.Interest.Routes,
			RouteIDs:   set.Sorted(webUI.Interest.RouteIDs),
			StationIDs: set.Sorted(webUI.Interest.StationIDs),
		}
		title = "Interest"
	case "status":
		title = "Poller - Status"
		data = "poller not initialized"
		if webUI.Poller != nil {
			data = webUI.Poller.Status()
		}
	case "board":
		title = "Poller - Last Published"
		data = "poller not initialized"
		if webUI.Poller != nil {
			data = webUI.Poller.LastPublished()
		}
	default:
		data = map[string]string{
			"error": "Please use one of the following: routes, stops, interest, status, board.",
		}
		title = "Choose a data type"
	}

	writeDebugData(w, r, title, data)
}
