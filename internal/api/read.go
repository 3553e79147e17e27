package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/duckgrid/duckgrid/internal/config"
	"github.com/duckgrid/duckgrid/internal/format"
	"github.com/duckgrid/duckgrid/internal/tabular"
)

type readHandler struct {
	cfg  config.Config
	deps Dependencies
}

type queryRequest struct {
	Path   string `json:"path"`
	Object string `json:"object"`
	SQL    string `json:"sql"`
	Table  string `json:"table"`
}

type tablesResponse struct {
	Format format.FileFormat `json:"format"`
	Tables []string          `json:"tables"`
}

type sheetsResponse struct {
	Sheets []string `json:"sheets"`
}

type schemaResponse struct {
	Format  format.FileFormat `json:"format"`
	Table   string            `json:"table,omitempty"`
	Columns []tabular.Column  `json:"columns"`
}

func (h *readHandler) listTables(w http.ResponseWriter, r *http.Request) {
	h.withSource(w, r, r.URL.Query().Get("path"), r.URL.Query().Get("object"), func(ctx context.Context, path string) (any, error) {
		tables, err := h.deps.Reader.ListTables(ctx, path)
		if err != nil {
			return nil, err
		}
		return tablesResponse{Format: format.Detect(path), Tables: tables}, nil
	})
}

func (h *readHandler) listSheets(w http.ResponseWriter, r *http.Request) {
	h.withSource(w, r, r.URL.Query().Get("path"), r.URL.Query().Get("object"), func(ctx context.Context, path string) (any, error) {
		sheets, err := h.deps.Reader.ListSheets(ctx, path)
		if err != nil {
			return nil, err
		}
		return sheetsResponse{Sheets: sheets}, nil
	})
}

func (h *readHandler) getSchema(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	h.withSource(w, r, r.URL.Query().Get("path"), r.URL.Query().Get("object"), func(ctx context.Context, path string) (any, error) {
		columns, err := h.deps.Reader.GetSchema(ctx, path, table)
		if err != nil {
			return nil, err
		}
		return schemaResponse{Format: format.Detect(path), Table: table, Columns: columns}, nil
	})
}

func (h *readHandler) preview(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit, err := intParam(values.Get("limit"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be an integer", false, map[string]any{"limit": values.Get("limit")})
		return
	}
	offset, err := intParam(values.Get("offset"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PARAMETER", "offset must be an integer", false, map[string]any{"offset": values.Get("offset")})
		return
	}
	opts := tabular.PreviewOptions{Limit: limit, Offset: offset, Table: values.Get("table")}

	h.withSource(w, r, values.Get("path"), values.Get("object"), func(ctx context.Context, path string) (any, error) {
		return h.deps.Reader.PreviewData(ctx, path, opts)
	})
}

func (h *readHandler) query(w http.ResponseWriter, r *http.Request) {
	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	h.withSource(w, r, request.Path, request.Object, func(ctx context.Context, path string) (any, error) {
		return h.deps.Reader.RunQuery(ctx, path, request.SQL, request.Table)
	})
}

// withSource resolves the request's file, bounds the call by the query
// timeout and writes either the result or a mapped error.
func (h *readHandler) withSource(w http.ResponseWriter, r *http.Request, rawPath, objectKey string, run func(ctx context.Context, path string) (any, error)) {
	if h.deps.Reader == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "READER_NOT_CONFIGURED", "reader dependencies are not configured", false, nil)
		return
	}

	ctx := r.Context()
	if h.cfg.Reader.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Reader.QueryTimeout)
		defer cancel()
	}

	src, err := resolveSource(ctx, h.cfg, h.deps.ObjectStore, rawPath, objectKey)
	if err != nil {
		h.writeReadError(r, w, err)
		return
	}
	defer src.release()

	payload, err := run(ctx, src.path)
	if err != nil {
		h.writeReadError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *readHandler) writeReadError(r *http.Request, w http.ResponseWriter, err error) {
	ctx := r.Context()
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		writeError(ctx, w, reqErr.status, reqErr.code, reqErr.message, reqErr.retryable, reqErr.context)
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		writeError(ctx, w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", err.Error(), false, nil)
	case errors.Is(err, tabular.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, tabular.ErrValidation):
		writeError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), false, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", "read operation timed out", true, map[string]any{"timeout": h.cfg.Reader.QueryTimeout.String()})
	case errors.Is(err, tabular.ErrEngine):
		h.logFailure(r, err)
		writeError(ctx, w, http.StatusUnprocessableEntity, "ENGINE_ERROR", "engine failed to read the file", false, map[string]any{"details": err.Error()})
	default:
		h.logFailure(r, err)
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "read operation failed", true, map[string]any{"details": err.Error()})
	}
}

func (h *readHandler) logFailure(r *http.Request, err error) {
	if h.deps.Logger == nil {
		return
	}
	h.deps.Logger.ErrorContext(r.Context(), "read operation failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
