package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/duckgrid/duckgrid/internal/config"
	"github.com/duckgrid/duckgrid/internal/storage"
	"github.com/duckgrid/duckgrid/internal/tabular"
)

type fakeReader struct {
	tables  []string
	sheets  []string
	columns []tabular.Column
	data    tabular.ParsedData
	err     error

	lastPath    string
	lastSQL     string
	lastTable   string
	lastPreview tabular.PreviewOptions
	onCall      func(path string)
}

func (f *fakeReader) record(path string) {
	f.lastPath = path
	if f.onCall != nil {
		f.onCall(path)
	}
}

func (f *fakeReader) ListTables(_ context.Context, path string) ([]string, error) {
	f.record(path)
	return f.tables, f.err
}

func (f *fakeReader) ListSheets(_ context.Context, path string) ([]string, error) {
	f.record(path)
	return f.sheets, f.err
}

func (f *fakeReader) GetSchema(_ context.Context, path, table string) ([]tabular.Column, error) {
	f.record(path)
	f.lastTable = table
	return f.columns, f.err
}

func (f *fakeReader) PreviewData(_ context.Context, path string, opts tabular.PreviewOptions) (tabular.ParsedData, error) {
	f.record(path)
	f.lastPreview = opts
	return f.data, f.err
}

func (f *fakeReader) RunQuery(_ context.Context, path, sqlText, table string) (tabular.ParsedData, error) {
	f.record(path)
	f.lastSQL = sqlText
	f.lastTable = table
	return f.data, f.err
}

type memoryObjects map[string][]byte

func (m memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	payload, ok := m[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m memoryObjects) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	payload, ok := m[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func writeTempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func newReadHandler(t *testing.T, env map[string]string, deps Dependencies) http.Handler {
	t.Helper()
	cfg, err := config.Load("duckgrid-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return NewHandler(cfg, deps)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v body=%s", err, rr.Body.String())
	}
	return body
}

func TestPreviewPassesWindowAndTable(t *testing.T) {
	path := writeTempFile(t, "app.db")
	reader := &fakeReader{data: tabular.ParsedData{
		Columns:   []tabular.Column{{Name: "id", Type: tabular.TypeNumber}},
		Rows:      []tabular.Row{{"id": float64(1)}},
		TotalRows: 1,
	}}
	h := newReadHandler(t, map[string]string{}, Dependencies{Reader: reader})

	target := "/v1/preview?path=" + url.QueryEscape(path) + "&table=t&limit=5&offset=10"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if reader.lastPreview != (tabular.PreviewOptions{Limit: 5, Offset: 10, Table: "t"}) {
		t.Fatalf("preview options = %#v", reader.lastPreview)
	}
	if reader.lastPath != path {
		t.Fatalf("path = %q, want %q", reader.lastPath, path)
	}
	body := decodeBody(t, rr)
	if body["totalRows"] != float64(1) {
		t.Fatalf("body = %#v", body)
	}
}

func TestPreviewRejectsNonIntegerLimit(t *testing.T) {
	path := writeTempFile(t, "app.db")
	reader := &fakeReader{}
	h := newReadHandler(t, map[string]string{}, Dependencies{Reader: reader})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/preview?path="+url.QueryEscape(path)+"&limit=ten", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if reader.lastPath != "" {
		t.Fatal("reader should not be called")
	}
}

func TestSourceResolutionErrors(t *testing.T) {
	root := t.TempDir()
	outside := writeTempFile(t, "outside.csv")

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{name: "missing source", target: "/v1/tables", status: http.StatusBadRequest, code: "SOURCE_REQUIRED"},
		{name: "relative path", target: "/v1/tables?path=data.csv", status: http.StatusBadRequest, code: "PATH_NOT_ABSOLUTE"},
		{name: "both sources", target: "/v1/tables?path=/a.csv&object=a.csv", status: http.StatusBadRequest, code: "SOURCE_CONFLICT"},
		{name: "outside root", target: "/v1/tables?path=" + url.QueryEscape(outside), status: http.StatusForbidden, code: "PATH_OUTSIDE_DATA_ROOT"},
		{name: "traversal", target: "/v1/tables?path=" + url.QueryEscape(root+"/../"+filepath.Base(root)+"/../x.csv"), status: http.StatusForbidden, code: "PATH_OUTSIDE_DATA_ROOT"},
		{name: "missing file", target: "/v1/tables?path=" + url.QueryEscape(filepath.Join(root, "nope.csv")), status: http.StatusNotFound, code: "FILE_NOT_FOUND"},
		{name: "object without store", target: "/v1/tables?object=a.csv", status: http.StatusNotImplemented, code: "OBJECT_STORE_NOT_CONFIGURED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reader := &fakeReader{}
			h := newReadHandler(t, map[string]string{"DUCKGRID_DATA_ROOT": root}, Dependencies{Reader: reader})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.target, nil))
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tc.status, rr.Body.String())
			}
			if code := decodeBody(t, rr)["error_code"]; code != tc.code {
				t.Fatalf("error_code = %v, want %s", code, tc.code)
			}
			if reader.lastPath != "" {
				t.Fatalf("reader called with %q", reader.lastPath)
			}
		})
	}
}

func TestSymlinkOutOfDataRootIsRejected(t *testing.T) {
	root := t.TempDir()
	outside := writeTempFile(t, "secret.csv")
	link := filepath.Join(root, "link.csv")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	reader := &fakeReader{}
	h := newReadHandler(t, map[string]string{"DUCKGRID_DATA_ROOT": root}, Dependencies{Reader: reader})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tables?path="+url.QueryEscape(link), nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReaderErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "unsupported", err: tabular.Unsupported("no reader for %s", "x.txt"), status: http.StatusUnsupportedMediaType, code: "UNSUPPORTED_FORMAT"},
		{name: "legacy workbook", err: tabular.ErrLegacySpreadsheet, status: http.StatusUnsupportedMediaType, code: "UNSUPPORTED_FORMAT"},
		{name: "not found", err: tabular.NotFound("table %q does not exist", "x"), status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "validation", err: tabular.Validation("offset must be >= 0"), status: http.StatusBadRequest, code: "VALIDATION_FAILED"},
		{name: "engine", err: tabular.Engine("query", fmt.Errorf("syntax error")), status: http.StatusUnprocessableEntity, code: "ENGINE_ERROR"},
		{name: "timeout", err: tabular.Engine("query", context.DeadlineExceeded), status: http.StatusGatewayTimeout, code: "QUERY_TIMEOUT"},
		{name: "unknown", err: fmt.Errorf("boom"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}

	path := writeTempFile(t, "data.parquet")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newReadHandler(t, map[string]string{}, Dependencies{Reader: &fakeReader{err: tc.err}})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema?path="+url.QueryEscape(path), nil))
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tc.status, rr.Body.String())
			}
			if code := decodeBody(t, rr)["error_code"]; code != tc.code {
				t.Fatalf("error_code = %v, want %s", code, tc.code)
			}
		})
	}
}

func TestQueryEndpoint(t *testing.T) {
	path := writeTempFile(t, "events.csv")
	reader := &fakeReader{data: tabular.Empty()}
	h := newReadHandler(t, map[string]string{}, Dependencies{Reader: reader})

	payload := fmt.Sprintf(`{"path":%q,"sql":"SELECT * FROM data","table":"x"}`, path)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(payload)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if reader.lastSQL != "SELECT * FROM data" || reader.lastTable != "x" {
		t.Fatalf("query forwarded as sql=%q table=%q", reader.lastSQL, reader.lastTable)
	}
	body := decodeBody(t, rr)
	if rows, ok := body["rows"].([]any); !ok || len(rows) != 0 {
		t.Fatalf("rows = %#v", body["rows"])
	}
}

func TestQueryEndpointRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed", body: `{`, code: "INVALID_JSON"},
		{name: "unknown field", body: `{"path":"/a.csv","sql":"SELECT 1","limit":5}`, code: "INVALID_JSON"},
		{name: "blank sql", body: `{"path":"/a.csv","sql":"  "}`, code: "SQL_REQUIRED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newReadHandler(t, map[string]string{}, Dependencies{Reader: &fakeReader{}})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(tc.body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if code := decodeBody(t, rr)["error_code"]; code != tc.code {
				t.Fatalf("error_code = %v, want %s", code, tc.code)
			}
		})
	}
}

func TestObjectSourceIsStagedAndReleased(t *testing.T) {
	staging := t.TempDir()
	var seen string
	var existedDuringCall bool
	reader := &fakeReader{
		sheets: []string{"Sheet1"},
		onCall: func(path string) {
			seen = path
			_, err := os.Stat(path)
			existedDuringCall = err == nil
		},
	}
	h := newReadHandler(t, map[string]string{"DUCKGRID_OBJECTSTORE_STAGING_DIR": staging}, Dependencies{
		Reader:      reader,
		ObjectStore: memoryObjects{"reports/q1.xlsx": []byte("workbook")},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sheets?object=reports/q1.xlsx", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if filepath.Base(seen) != "q1.xlsx" {
		t.Fatalf("staged path = %q", seen)
	}
	if !strings.HasPrefix(seen, staging) {
		t.Fatalf("staged path %q not under %q", seen, staging)
	}
	if !existedDuringCall {
		t.Fatal("staged file missing during reader call")
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Fatalf("staged file not removed: %v", err)
	}
}

func TestMissingObjectReturns404(t *testing.T) {
	h := newReadHandler(t, map[string]string{}, Dependencies{
		Reader:      &fakeReader{},
		ObjectStore: memoryObjects{},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tables?object=missing.db", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if code := decodeBody(t, rr)["error_code"]; code != "OBJECT_NOT_FOUND" {
		t.Fatalf("error_code = %v", code)
	}
}

func TestOversizedObjectReturns413(t *testing.T) {
	reader := &fakeReader{}
	h := newReadHandler(t, map[string]string{"DUCKGRID_OBJECTSTORE_MAX_BYTES": "4"}, Dependencies{
		Reader:      reader,
		ObjectStore: memoryObjects{"exports/big.csv": []byte("id\n1\n2\n")},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema?object=exports/big.csv", nil))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if code := decodeBody(t, rr)["error_code"]; code != "OBJECT_TOO_LARGE" {
		t.Fatalf("error_code = %v", code)
	}
	if reader.lastPath != "" {
		t.Fatalf("reader called for oversized object: %q", reader.lastPath)
	}
}

func TestReaderTimeoutIsApplied(t *testing.T) {
	path := writeTempFile(t, "slow.parquet")
	var deadline time.Time
	var hasDeadline bool
	reader := &ctxReader{fn: func(ctx context.Context) {
		deadline, hasDeadline = ctx.Deadline()
	}}
	h := newReadHandler(t, map[string]string{"DUCKGRID_QUERY_TIMEOUT": "3s"}, Dependencies{Reader: reader})

	start := time.Now()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tables?path="+url.QueryEscape(path), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !hasDeadline {
		t.Fatal("expected deadline on reader context")
	}
	if deadline.Sub(start) > 3*time.Second+time.Second {
		t.Fatalf("deadline too far: %s", deadline.Sub(start))
	}
}

type ctxReader struct {
	fakeReader
	fn func(ctx context.Context)
}

func (c *ctxReader) ListTables(ctx context.Context, path string) ([]string, error) {
	c.fn(ctx)
	return []string{"data"}, nil
}
