package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/pipecheck/internal/duckdb"
	"github.com/tinytelemetry/pipecheck/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *duckdb.Store, http.Handler) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := NewServer("", store)
	srv.now = func() time.Time { return testNow }
	return srv, store, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body
}

func seed(t *testing.T, store *duckdb.Store) {
	t.Helper()
	err := store.PutIndexTemplate(model.IndexTemplateRecord{
		Name:          "logs-syslog-template",
		IndexPatterns: []string{"logs-syslog-*"},
		Priority:      500,
		Body:          []byte(`{"index_patterns":["logs-syslog-*"],"priority":500}`),
	})
	if err != nil {
		t.Fatalf("PutIndexTemplate: %v", err)
	}
	docs := []*model.Document{
		{Stream: "logs-syslog-default", Timestamp: testNow.Add(-2 * time.Hour), ReceivedAt: testNow, Message: "old"},
		{Stream: "logs-syslog-default", Timestamp: testNow.Add(-5 * time.Minute), ReceivedAt: testNow, Message: "recent"},
		{Stream: "logs-syslog-default", Timestamp: testNow.Add(-time.Minute), ReceivedAt: testNow, Message: "newest"},
	}
	if err := store.InsertDocuments(docs); err != nil {
		t.Fatalf("InsertDocuments: %v", err)
	}
}

func TestInfoEndpoint(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}
	if got := w.Header().Get("X-Elastic-Product"); got != "Elasticsearch" {
		t.Fatalf("X-Elastic-Product = %q", got)
	}
	version := decode(t, w)["version"].(map[string]any)
	if version["number"] != CompatVersion {
		t.Fatalf("version = %v", version["number"])
	}

	if w := do(t, h, http.MethodHead, "/", ""); w.Code != http.StatusOK {
		t.Fatalf("HEAD / status = %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, store, h := newTestServer(t)
	seed(t, store)

	w := do(t, h, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["doc_count"] != float64(3) {
		t.Errorf("doc_count = %v, want 3", body["doc_count"])
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/health", "")
	if w.Code == http.StatusOK {
		t.Errorf("health POST status = %d, want an error", w.Code)
	}
}

func TestCount(t *testing.T) {
	_, store, h := newTestServer(t)
	seed(t, store)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   float64
	}{
		{"no body", http.MethodGet, "/logs-syslog-default/_count", "", 3},
		{"match_all", http.MethodPost, "/logs-syslog-default/_count", `{"query":{"match_all":{}}}`, 3},
		{"absolute range", http.MethodPost, "/logs-syslog-default/_count",
			`{"query":{"range":{"@timestamp":{"gte":"2026-03-10T11:50:00.000000Z","lte":"2026-03-10T12:00:00.000000Z"}}}}`, 2},
		{"date math", http.MethodPost, "/logs-syslog-default/_count",
			`{"query":{"range":{"@timestamp":{"gte":"now-3m","lte":"now"}}}}`, 1},
		{"pattern", http.MethodPost, "/logs-*/_count", "", 3},
		{"pattern without match", http.MethodPost, "/metrics-*/_count", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			if got := decode(t, w)["count"]; got != tt.want {
				t.Fatalf("count = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCount_MissingStream(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/logs-syslog-nope/_count", `{"query":{"match_all":{}}}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	errBody := decode(t, w)["error"].(map[string]any)
	if errBody["type"] != "index_not_found_exception" {
		t.Fatalf("error type = %v", errBody["type"])
	}
}

func TestCount_UnsupportedQuery(t *testing.T) {
	_, store, h := newTestServer(t)
	seed(t, store)

	w := do(t, h, http.MethodPost, "/logs-syslog-default/_count", `{"query":{"term":{"host":"a"}}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestIndexTemplateLifecycle(t *testing.T) {
	_, store, h := newTestServer(t)

	body := `{"index_patterns":["logs-syslog-*"],"data_stream":{},"priority":500,"template":{"settings":{"number_of_shards":1}}}`
	w := do(t, h, http.MethodPut, "/_index_template/logs-syslog-template", body)
	if w.Code != http.StatusOK || decode(t, w)["acknowledged"] != true {
		t.Fatalf("PUT status = %d, body %s", w.Code, w.Body.String())
	}

	tmpl, ok, err := store.IndexTemplate("logs-syslog-template")
	if err != nil || !ok {
		t.Fatalf("IndexTemplate: ok=%v err=%v", ok, err)
	}
	if tmpl.Priority != 500 || len(tmpl.IndexPatterns) != 1 || tmpl.IndexPatterns[0] != "logs-syslog-*" {
		t.Fatalf("stored template = %+v", tmpl)
	}

	w = do(t, h, http.MethodGet, "/_index_template/logs-syslog-template", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	list := decode(t, w)["index_templates"].([]any)
	if len(list) != 1 {
		t.Fatalf("index_templates = %v", list)
	}

	if w := do(t, h, http.MethodDelete, "/_index_template/logs-syslog-template", ""); w.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/_index_template/logs-syslog-template", ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want 404", w.Code)
	}
}

func TestIndexTemplate_RequiresPatterns(t *testing.T) {
	_, _, h := newTestServer(t)

	if w := do(t, h, http.MethodPut, "/_index_template/bad", `{"priority":1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if w := do(t, h, http.MethodPut, "/_index_template/bad", `{not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDataStreamLifecycle(t *testing.T) {
	_, store, h := newTestServer(t)

	if w := do(t, h, http.MethodGet, "/_data_stream/logs-syslog-default", ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET missing status = %d, want 404", w.Code)
	}
	if w := do(t, h, http.MethodPut, "/_data_stream/logs-syslog-default", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("PUT without template status = %d, want 400", w.Code)
	}

	seed(t, store)

	w := do(t, h, http.MethodGet, "/_data_stream/logs-syslog-default", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	streams := decode(t, w)["data_streams"].([]any)
	if len(streams) != 1 || streams[0].(map[string]any)["name"] != "logs-syslog-default" {
		t.Fatalf("data_streams = %v", streams)
	}

	if w := do(t, h, http.MethodGet, "/_data_stream/metrics-*", ""); w.Code != http.StatusOK {
		t.Fatalf("GET empty pattern status = %d, want 200", w.Code)
	}

	if w := do(t, h, http.MethodDelete, "/_data_stream/logs-syslog-default", ""); w.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/_data_stream/logs-syslog-default", ""); w.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d, want 404", w.Code)
	}

	if w := do(t, h, http.MethodPut, "/_data_stream/logs-syslog-other", ""); w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", w.Code)
	}
	if w := do(t, h, http.MethodPut, "/_data_stream/logs-syslog-other", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("second PUT status = %d, want 400", w.Code)
	}
}

func TestParseDateMath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"now", testNow},
		{"now-15m", testNow.Add(-15 * time.Minute)},
		{"now+1h", testNow.Add(time.Hour)},
		{"2026-03-10T11:00:00.000000Z", testNow.Add(-time.Hour)},
		{"1773140400000", time.UnixMilli(1773140400000)},
	}
	for _, tt := range tests {
		got, err := parseDateMath(tt.in, testNow)
		if err != nil {
			t.Fatalf("parseDateMath(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("parseDateMath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := parseDateMath("now-5y", testNow); err == nil {
		t.Fatal("parseDateMath(now-5y) succeeded, want error")
	}
}
