package server

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crusty-reader/internal/extract"
	"crusty-reader/internal/fetch"
	"crusty-reader/internal/model"
	"crusty-reader/internal/pagination"
	"crusty-reader/internal/store"
	"crusty-reader/internal/urlnorm"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SitemapLimit is the number of newest articles listed in /sitemap.xml.
const SitemapLimit = 1000

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("Jan 02, 2006") },
	"domain": func(a model.Article) string {
		if a.SiteName != nil && *a.SiteName != "" {
			return *a.SiteName
		}
		return extract.SiteDomain(a.URL)
	},
	"trusted": func(s string) template.HTML {
		// content is sanitized before it is stored
		return template.HTML(s)
	},
}

type pageData struct {
	Title   string
	Flash   string
	List    pagination.Predicate
	Page    *pagination.Page
	Article *model.Article
	Status  int
	Message string
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// statusFor maps pipeline and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, urlnorm.ErrInvalidURL), errors.Is(err, pagination.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, fetch.ErrLoginRequired), errors.Is(err, extract.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fetch.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "Internal error"
	}
	s.renderError(w, r, status, msg)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if wantsJSON(r) {
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	s.render(w, status, "error.html", pageData{Title: http.StatusText(status), Status: status, Message: msg})
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data pageData) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.logger.Error("Template error", zap.String("page", page), zap.Error(err))
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func articleID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id", store.ErrNotFound)
	}
	return id, nil
}

func readPath(id int64) string {
	return "/r/" + strconv.FormatInt(id, 10)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/"+string(pagination.Unread), http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePost saves a URL synchronously.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.FormValue("url"))
	if raw == "" {
		s.renderError(w, r, http.StatusBadRequest, "url is required")
		return
	}

	article, isNew, err := s.ingester.Save(r.Context(), raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if wantsJSON(r) {
		status := http.StatusOK
		if isNew {
			status = http.StatusCreated
		}
		writeJSON(w, status, article)
		return
	}
	if isNew {
		setFlash(w, "Saved: "+article.Title)
	} else {
		setFlash(w, "Updated: "+article.Title)
	}
	http.Redirect(w, r, readPath(article.ID), http.StatusSeeOther)
}

// handleEnqueue queues a URL for the background worker.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.renderError(w, r, http.StatusServiceUnavailable, "background ingestion is disabled")
		return
	}
	normalized, err := urlnorm.Normalize(r.FormValue("url"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	job := model.NewJob(normalized)
	if err := s.jobs.Enqueue(r.Context(), &job); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("Job queued", zap.String("job_id", job.ID.String()), zap.String("url", normalized))
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.renderError(w, r, http.StatusServiceUnavailable, "background ingestion is disabled")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id, err := articleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	article, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, article)
		return
	}
	s.render(w, http.StatusOK, "read.html", pageData{
		Title:   article.Title,
		Flash:   popFlash(w, r),
		Article: article,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := articleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMethodOverride lets HTML forms delete with POST and _method=DELETE.
func (s *Server) handleMethodOverride(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(r.FormValue("_method"), http.MethodDelete) {
		s.renderError(w, r, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	id, err := articleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	setFlash(w, "Article deleted")
	http.Redirect(w, r, "/"+string(pagination.Unread), http.StatusSeeOther)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, s.store.ToggleRead)
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, s.store.ToggleFavorite)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*model.Article, error)) {
	id, err := articleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	article, err := fn(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, article)
		return
	}
	http.Redirect(w, r, readPath(id), http.StatusSeeOther)
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	article, err := s.store.RandomFavorite(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, "No favorites yet")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, article)
		return
	}
	http.Redirect(w, r, readPath(article.ID), http.StatusFound)
}

func (s *Server) handleList(pred pagination.Predicate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := s.cfg.PageSize
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				s.renderError(w, r, http.StatusBadRequest, "limit must be a number")
				return
			}
			limit = n
		}

		page, err := s.paginator.Page(r.Context(), pred, q.Get("cursor"), limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, page)
			return
		}
		s.render(w, http.StatusOK, "list.html", pageData{
			Title: strings.ToUpper(string(pred[:1])) + string(pred[1:]),
			Flash: popFlash(w, r),
			List:  pred,
			Page:  page,
		})
	}
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	articles, err := s.store.ListAfter(r.Context(), pagination.All, nil, SitemapLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	base := scheme + "://" + r.Host

	set := urlset{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, a := range articles {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     base + readPath(a.ID),
			LastMod: a.CreatedAt.UTC().Format("2006-01-02"),
		})
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		s.logger.Error("Failed to encode sitemap", zap.Error(err))
	}
}
