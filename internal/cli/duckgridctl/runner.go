package duckgridctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/duckgrid/duckgrid/internal/cli/render"
	"github.com/duckgrid/duckgrid/internal/tabular"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Output     string
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// request is one resolved CLI invocation against the HTTP host.
type request struct {
	method string
	path   string
	query  url.Values
	body   []byte
	print  func(w io.Writer, raw []byte, output string) error
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("duckgridctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "duckgrid API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 10s)")
	output := fs.String("output", firstNonEmpty(defaults.Output, render.FormatTable), "output format (table|json)")
	path := fs.String("path", "", "absolute path of the file on the server")
	object := fs.String("object", "", "object store key to read instead of a path")
	tableName := fs.String("table", "", "table or sheet name")
	limit := fs.Int("limit", 0, "preview row limit (0 uses the server default)")
	offset := fs.Int("offset", 0, "preview row offset")
	sqlText := fs.String("sql", "", "SQL text for the query command")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if err := render.CheckFormat(*output); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	source := url.Values{}
	if *path != "" {
		source.Set("path", *path)
	}
	if *object != "" {
		source.Set("object", *object)
	}

	command := strings.TrimSpace(fs.Arg(0))
	var req request
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health", print: printRaw}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready", print: printRaw}
	case "tables":
		req = request{method: http.MethodGet, path: "/v1/tables", query: source, print: printNames("Tables", "tables")}
	case "sheets":
		req = request{method: http.MethodGet, path: "/v1/sheets", query: source, print: printNames("Sheets", "sheets")}
	case "schema":
		if *tableName != "" {
			source.Set("table", *tableName)
		}
		req = request{method: http.MethodGet, path: "/v1/schema", query: source, print: printSchema}
	case "preview":
		if *tableName != "" {
			source.Set("table", *tableName)
		}
		if *limit != 0 {
			source.Set("limit", strconv.Itoa(*limit))
		}
		if *offset != 0 {
			source.Set("offset", strconv.Itoa(*offset))
		}
		req = request{method: http.MethodGet, path: "/v1/preview", query: source, print: printData}
	case "query":
		if strings.TrimSpace(*sqlText) == "" {
			_, _ = fmt.Fprintln(stderr, "query requires -sql")
			return 2
		}
		body, err := json.Marshal(map[string]string{
			"path":   *path,
			"object": *object,
			"sql":    *sqlText,
			"table":  *tableName,
		})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
			return 1
		}
		req = request{method: http.MethodPost, path: "/v1/query", body: body, print: printData}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if err := req.print(stdout, responseBody, *output); err != nil {
		_, _ = fmt.Fprintf(stderr, "render response: %v\n", err)
		return 1
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, body []byte) (int, []byte, error) {
	var payload io.Reader
	if body != nil {
		payload = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func printRaw(w io.Writer, raw []byte, _ string) error {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return nil
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
	return nil
}

func printNames(title, field string) func(io.Writer, []byte, string) error {
	return func(w io.Writer, raw []byte, output string) error {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
		var names []string
		if err := json.Unmarshal(payload[field], &names); err != nil {
			return fmt.Errorf("decode %s: %w", field, err)
		}
		return render.Names(w, title, names, output)
	}
}

func printSchema(w io.Writer, raw []byte, output string) error {
	if output == render.FormatJSON {
		return printRaw(w, raw, output)
	}
	var payload struct {
		Columns []tabular.Column `json:"columns"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return render.Columns(w, payload.Columns, output)
}

func printData(w io.Writer, raw []byte, output string) error {
	if output == render.FormatJSON {
		return printRaw(w, raw, output)
	}
	var data tabular.ParsedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	return render.Data(w, data, output)
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: duckgridctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health    GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready     GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  tables    GET /v1/tables   (-path or -object)")
	_, _ = fmt.Fprintln(w, "  sheets    GET /v1/sheets   (-path or -object)")
	_, _ = fmt.Fprintln(w, "  schema    GET /v1/schema   (-table for databases and workbooks)")
	_, _ = fmt.Fprintln(w, "  preview   GET /v1/preview  (-table, -limit, -offset)")
	_, _ = fmt.Fprintln(w, "  query     POST /v1/query   (-sql, optional -table)")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
