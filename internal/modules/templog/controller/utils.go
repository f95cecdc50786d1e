package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"templog-server/internal/modules/templog/location"
	"templog-server/internal/modules/templog/repository"
	"templog-server/internal/modules/templog/service"
	"templog-server/internal/modules/templog/views"
	"templog-server/internal/utils"
)

// redirectURL builds path?key=value for the named form keys. Keys missing
// from the form are carried as empty values.
func redirectURL(path string, form url.Values, keys ...string) string {
	q := url.Values{}
	for _, k := range keys {
		q.Set(k, form.Get(k))
	}
	return path + "?" + q.Encode()
}

type errorPage struct {
	status  int
	title   string
	message string
}

// classifyError maps service errors to the page shown to the user.
func classifyError(err error) errorPage {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorPage{http.StatusBadRequest, "Invalid input", verr.Error()}
	case errors.Is(err, location.ErrLocationUnavailable):
		return errorPage{http.StatusBadGateway, "Location unavailable", "Your location could not be determined, so nothing was saved."}
	case errors.Is(err, repository.ErrConnectionUnavailable), errors.Is(err, repository.ErrStoreClosed):
		return errorPage{http.StatusServiceUnavailable, "Storage unavailable", "The log store is unavailable. Please try again later."}
	default:
		return errorPage{http.StatusInternalServerError, "Something went wrong", "The request could not be completed."}
	}
}

func (c *tempLogControllerImpl) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		c.logger.Info("request cancelled", "path", r.URL.Path)
		return
	}
	page := classifyError(err)
	level := c.logger.Warn
	if page.status >= http.StatusInternalServerError {
		level = c.logger.Error
	}
	level("request failed", "path", r.URL.Path, "status", page.status, "error", err)
	c.renderError(w, r, page.status, page.title, page.message)
}

func (c *tempLogControllerImpl) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	c.renderPage(w, r, status, func(w io.Writer) error {
		return views.RenderError(w, views.ErrorData{Status: status, Title: title, Message: message})
	})
}

// renderPage renders into a buffer first so a template failure can still
// produce a clean 500 response.
func (c *tempLogControllerImpl) renderPage(w http.ResponseWriter, r *http.Request, status int, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		c.logger.Error("template render failed", "path", r.URL.Path, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, status, buf.Bytes())
}
