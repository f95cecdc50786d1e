package controller

import (
	"io"
	"net/http"

	"templog-server/internal/modules/templog/types"
	"templog-server/internal/modules/templog/views"
)

func (c *tempLogControllerImpl) handleHome(w http.ResponseWriter, r *http.Request) {
	c.renderPage(w, r, http.StatusOK, views.RenderHome)
}

func (c *tempLogControllerImpl) handleLogForm(w http.ResponseWriter, r *http.Request) {
	c.renderPage(w, r, http.StatusOK, views.RenderLogForm)
}

// handleLogPost hands the submitted value to the confirmation page through
// the query string. Nothing is validated or stored here.
func (c *tempLogControllerImpl) handleLogPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		c.renderError(w, r, http.StatusBadRequest, "Invalid input", "The form could not be read.")
		return
	}
	http.Redirect(w, r, redirectURL("/logSubmitted", r.PostForm, "temp"), http.StatusFound)
}

func (c *tempLogControllerImpl) handleLogSubmitted(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("temp")
	record, err := c.service.Submit(r.Context(), raw)
	if err != nil {
		c.handleServiceError(w, r, err)
		return
	}
	c.renderPage(w, r, http.StatusOK, func(w io.Writer) error {
		return views.RenderLogSubmitted(w, record)
	})
}

func (c *tempLogControllerImpl) handleGetLogsForm(w http.ResponseWriter, r *http.Request) {
	c.renderPage(w, r, http.StatusOK, views.RenderGetLogsForm)
}

func (c *tempLogControllerImpl) handleGetLogsPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		c.renderError(w, r, http.StatusBadRequest, "Invalid input", "The form could not be read.")
		return
	}
	http.Redirect(w, r, redirectURL("/showLogs", r.PostForm, "bottomRange", "topRange"), http.StatusFound)
}

func (c *tempLogControllerImpl) handleShowLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tr, records, err := c.service.Query(r.Context(), q.Get("bottomRange"), q.Get("topRange"))
	if err != nil {
		c.handleServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []types.Record{}
	}
	c.renderPage(w, r, http.StatusOK, func(w io.Writer) error {
		return views.RenderShowLogs(w, views.ShowLogsData{Range: tr, Records: records})
	})
}
