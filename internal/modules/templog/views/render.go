package views

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"

	"templog-server/internal/modules/templog/types"
)

//go:embed templates
var viewsFS embed.FS

var pagesTmpl *template.Template

// loadTemplatesFromFS loads page templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	pagesTmpl = tmpl
	return nil
}

// LoadTemplates loads the embedded page templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

var errNotLoaded = errors.New("page templates not loaded: call views.LoadTemplates during startup")

func render(w io.Writer, name string, data any) error {
	if pagesTmpl == nil {
		return errNotLoaded
	}
	return pagesTmpl.ExecuteTemplate(w, name, data)
}

func RenderHome(w io.Writer) error {
	return render(w, "home.html", nil)
}

func RenderLogForm(w io.Writer) error {
	return render(w, "log.html", nil)
}

// RenderLogSubmitted renders the confirmation for a stored record.
func RenderLogSubmitted(w io.Writer, record types.Record) error {
	return render(w, "logSubmitted.html", record)
}

func RenderGetLogsForm(w io.Writer) error {
	return render(w, "getLogs.html", nil)
}

// ShowLogsData is the view model for the results table. Records are shown in
// the order given; an empty slice renders the header row only.
type ShowLogsData struct {
	Range   types.TempRange
	Records []types.Record
}

func RenderShowLogs(w io.Writer, data ShowLogsData) error {
	return render(w, "showLogs.html", data)
}

// ErrorData is the view model for the error page. Message is shown to the
// user as is and must not carry internal error details.
type ErrorData struct {
	Status  int
	Title   string
	Message string
}

func RenderError(w io.Writer, data ErrorData) error {
	return render(w, "error.html", data)
}
