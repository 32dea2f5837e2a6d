package pricinghttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"

	"github.com/printworks/storefront/internal/history"
	"github.com/printworks/storefront/internal/platform/httpx"
	"github.com/printworks/storefront/internal/pricing"
	"github.com/printworks/storefront/internal/pricing/importer"
)

type importResponse struct {
	importer.Result
	Warning string `json:"warning,omitempty"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.importMaxBytes)
	data, format, err := h.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Problem(w, http.StatusRequestEntityTooLarge, "File Too Large",
				fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if len(data) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "empty upload")
		return
	}

	if h.importLock != nil {
		unlock, ok, err := h.importLock.LockImport(r.Context(), h.importLockTTL)
		switch {
		case err != nil:
			h.logger.Warn("import lock unavailable, importing unlocked", slog.Any("error", err))
		case !ok:
			httpx.Problem(w, http.StatusConflict, "Import In Progress", "another price import is running")
			return
		default:
			defer unlock()
		}
	}

	res, err := h.imports.ImportFile(r.Context(), format, data)
	var recErr *importer.RecordError
	switch {
	case err == nil:
	case errors.As(err, &recErr):
		h.logger.Warn("import not recorded", slog.String("run_id", res.RunID.String()), slog.Any("error", err))
	default:
		h.respondError(w, "import", err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveImport(res.Imported, res.Skipped)
	}
	out := importResponse{Result: res}
	if recErr != nil {
		out.Warning = "rows saved but the import was not recorded in history or the cache was not refreshed"
	}
	httpx.JSON(w, http.StatusOK, out)
}

// readUpload accepts a multipart field named "file" or the raw request body.
func (h *Handler) readUpload(r *http.Request) ([]byte, importer.Format, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", err
		}
		return data, importer.DetectFormat(r.URL.Query().Get("filename"), mediaType), nil
	}

	if err := r.ParseMultipartForm(h.importMaxBytes); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("multipart field %q: %w", "file", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, importer.DetectFormat(header.Filename, header.Header.Get("Content-Type")), nil
}

type historyResponse struct {
	Service  pricing.Service `json:"service"`
	TimeZone string          `json:"timeZone"`
	Entries  []history.Entry `json:"entries"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a positive number")
			return
		}
		limit = n
	}
	loc := time.UTC
	if tz := strings.TrimSpace(query.Get("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("unknown time zone %q", tz))
			return
		}
		loc = l
	}

	svc, entries, err := h.admin.History(r.Context(), chi.URLParam(r, "slug"), limit)
	if err != nil {
		h.respondError(w, "history", err)
		return
	}
	for i := range entries {
		entries[i].CreatedAt = entries[i].CreatedAt.In(loc)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	httpx.JSON(w, http.StatusOK, historyResponse{Service: svc, TimeZone: loc.String(), Entries: entries})
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := pricing.ListFilters{Category: strings.TrimSpace(query.Get("category"))}
	if raw := query.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "active must be true or false")
			return
		}
		filters.ActiveOnly = active
	}
	services, err := h.reader.ListServices(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list services", err)
		return
	}
	if services == nil {
		services = []pricing.Service{}
	}
	httpx.JSON(w, http.StatusOK, services)
}

func (h *Handler) handleUpsertService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, "decode service", validationErr(err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, "validate service", validationErr(err))
		return
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = pricing.Slugify(req.Name)
	}
	svc, err := h.admin.UpsertService(r.Context(), slug, req.Name, req.Category)
	if err != nil {
		h.respondError(w, "upsert service", err)
		return
	}
	httpx.JSON(w, http.StatusOK, svc)
}

func (h *Handler) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.admin.DeleteService(r.Context(), id); err != nil {
		h.respondError(w, "delete service", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRows(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.reader.GetService(r.Context(), id); err != nil {
		h.respondError(w, "get service", err)
		return
	}
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	rows, err := h.reader.ListPriceRows(r.Context(), id, activeOnly)
	if err != nil {
		h.respondError(w, "list rows", err)
		return
	}
	if rows == nil {
		rows = []pricing.PriceRow{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) decodeRow(r *http.Request) (pricing.Attributes, pricing.Rule, error) {
	var req rowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return pricing.Attributes{}, nil, validationErr(err)
	}
	if err := h.validate.Struct(req); err != nil {
		return pricing.Attributes{}, nil, validationErr(err)
	}
	rule, err := req.rule()
	if err != nil {
		return pricing.Attributes{}, nil, err
	}
	return req.Attrs, rule, nil
}

func (h *Handler) handleCreateRow(w http.ResponseWriter, r *http.Request) {
	serviceID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	attrs, rule, err := h.decodeRow(r)
	if err != nil {
		h.respondError(w, "decode row", err)
		return
	}
	row, err := h.admin.CreateRow(r.Context(), serviceID, attrs, rule)
	if err != nil {
		h.respondError(w, "create row", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}

func (h *Handler) handleReplaceRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	attrs, rule, err := h.decodeRow(r)
	if err != nil {
		h.respondError(w, "decode row", err)
		return
	}
	row, err := h.admin.ReplaceRow(r.Context(), rowID, attrs, rule)
	if err != nil {
		h.respondError(w, "replace row", err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) handleDeactivateRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.admin.DeactivateRow(r.Context(), rowID); err != nil {
		h.respondError(w, "deactivate row", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.admin.DeleteRow(r.Context(), rowID); err != nil {
		h.respondError(w, "delete row", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
