package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/matchmaking"
	"github.com/playchess/backend/internal/metrics"
	"github.com/playchess/backend/internal/rating"
	"github.com/rs/zerolog"
)

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()
	m := metrics.New()

	router := gin.New()
	SetupRoutes(router, Deps{
		Config:      cfg,
		Log:         log,
		Matchmaking: matchmaking.NewEngine(matchmaking.NewMemoryQueueStore(), matchmaking.NewNotifier(log), log, matchmaking.WithMetrics(m)),
		Ratings:     rating.NewEngine(rating.NewMemoryStore(), rating.DefaultSolver(), log, m),
		Metrics:     m,
	})
	return router
}

func testConfig() *config.Config {
	return &config.Config{Environment: "test", JWTSecret: "secret"}
}

func call(t *testing.T, r http.Handler, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestQueueJoinAndMatch(t *testing.T) {
	r := newTestRouter(t, testConfig())

	code, body := call(t, r, http.MethodPost, "/queue/join", `{"playerId":"A","mode":"blitz","rating":1200}`)
	if code != http.StatusOK || body["matched"] != false {
		t.Fatalf("first join: %d %v", code, body)
	}

	code, body = call(t, r, http.MethodPost, "/api/v1/queue/join", `{"playerId":"B","mode":"blitz","rating":1210}`)
	if code != http.StatusOK || body["matched"] != true || body["opponent"] != "A" {
		t.Fatalf("second join: %d %v", code, body)
	}
	if id, _ := body["matchId"].(string); id == "" {
		t.Error("expected a match id")
	}

	req := httptest.NewRequest(http.MethodGet, "/queue/state?mode=blitz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "[]" {
		t.Errorf("queue should be empty, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestQueueJoinValidation(t *testing.T) {
	r := newTestRouter(t, testConfig())

	for _, body := range []string{
		`{"mode":"blitz","rating":1200}`,
		`{"playerId":"A","rating":1200}`,
		`{"playerId":"A","mode":"blitz"}`,
		`{"playerId":"A","mode":"blitz","rating":"1200"}`,
		`not json`,
	} {
		if code, _ := call(t, r, http.MethodPost, "/queue/join", body); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, code)
		}
	}

	if code, _ := call(t, r, http.MethodPost, "/queue/join", `{"playerId":"Z","mode":"blitz","rating":0}`); code != http.StatusOK {
		t.Errorf("rating 0 is a valid number, got %d", code)
	}
}

func TestQueueLeaveAndState(t *testing.T) {
	r := newTestRouter(t, testConfig())

	call(t, r, http.MethodPost, "/queue/join", `{"playerId":"A","mode":"rapid","rating":1000,"region":"eu"}`)
	call(t, r, http.MethodPost, "/queue/join", `{"playerId":"B","mode":"rapid","rating":2000}`)

	req := httptest.NewRequest(http.MethodGet, "/queue/state?mode=rapid", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var entries []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(entries) != 2 || entries[0]["playerId"] != "A" || entries[0]["region"] != "eu" {
		t.Fatalf("unexpected state: %v", entries)
	}
	if ts, _ := entries[0]["ts"].(float64); ts <= 0 {
		t.Errorf("expected unix ms ts, got %v", entries[0]["ts"])
	}

	if code, body := call(t, r, http.MethodPost, "/queue/leave", `{"playerId":"A","mode":"rapid"}`); code != http.StatusOK || body["removed"] != true {
		t.Errorf("leave: %d %v", code, body)
	}
	if _, body := call(t, r, http.MethodPost, "/queue/leave", `{"playerId":"A","mode":"rapid"}`); body["removed"] != false {
		t.Errorf("second leave should report false, got %v", body)
	}

	if code, _ := call(t, r, http.MethodGet, "/queue/state", ""); code != http.StatusBadRequest {
		t.Errorf("missing mode: expected 400, got %d", code)
	}
}

func TestRatingsEndpoints(t *testing.T) {
	r := newTestRouter(t, testConfig())

	if code, _ := call(t, r, http.MethodGet, "/ratings/nobody", ""); code != http.StatusNotFound {
		t.Errorf("unknown user: expected 404, got %d", code)
	}

	code, body := call(t, r, http.MethodPost, "/ratings/results", `{"playerId":"A","opponentId":"B","score":1,"pool":"rapid"}`)
	if code != http.StatusOK {
		t.Fatalf("record result: %d %v", code, body)
	}

	code, body = call(t, r, http.MethodGet, "/api/v1/ratings/A", "")
	if code != http.StatusOK || body["userId"] != "A" {
		t.Fatalf("get ratings: %d %v", code, body)
	}
	list, _ := body["ratings"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("expected one pool, got %v", body["ratings"])
	}
	rec := list[0].(map[string]interface{})
	if rec["pool"] != "rapid" || rec["rating"].(float64) <= 1500 || rec["vol"] == nil || rec["rd"] == nil {
		t.Errorf("unexpected rating record: %v", rec)
	}

	if code, body := call(t, r, http.MethodPost, "/ratings/recalc", ""); code != http.StatusOK || body["status"] != "recalculated" {
		t.Errorf("recalc all: %d %v", code, body)
	}
	if code, _ := call(t, r, http.MethodPost, "/ratings/recalc", `{"pool":"rapid"}`); code != http.StatusOK {
		t.Errorf("recalc pool: %d", code)
	}

	_, after := call(t, r, http.MethodGet, "/ratings/A", "")
	again := after["ratings"].([]interface{})[0].(map[string]interface{})
	if again["rating"] != rec["rating"] {
		t.Errorf("recalculation changed rating: %v -> %v", rec["rating"], again["rating"])
	}
}

func TestRecordResultValidation(t *testing.T) {
	r := newTestRouter(t, testConfig())

	for _, body := range []string{
		`{"playerId":"A","opponentId":"B","score":0.7,"pool":"rapid"}`,
		`{"playerId":"A","opponentId":"A","score":1,"pool":"rapid"}`,
		`{"playerId":"A","opponentId":"B","pool":"rapid"}`,
		`{"playerId":"A","opponentId":"B","score":1}`,
	} {
		if code, _ := call(t, r, http.MethodPost, "/ratings/results", body); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, code)
		}
	}

	if code, _ := call(t, r, http.MethodPost, "/ratings/results", `{"playerId":"A","opponentId":"B","score":0,"pool":"rapid"}`); code != http.StatusOK {
		t.Errorf("score 0 is a loss, got %d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, testConfig())

	code, body := call(t, r, http.MethodGet, "/health", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %d %v", code, body)
	}
	if code, _ := call(t, r, http.MethodGet, "/api/v1/health", ""); code != http.StatusOK {
		t.Errorf("v1 health: %d", code)
	}

	call(t, r, http.MethodPost, "/queue/join", `{"playerId":"A","mode":"blitz","rating":1200}`)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("queue_joins_total")) {
		t.Errorf("metrics missing queue joins: %d", rec.Code)
	}
}

func TestQueueRequiresTokenWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRequired = true
	r := newTestRouter(t, cfg)

	if code, _ := call(t, r, http.MethodPost, "/queue/join", `{"playerId":"A","mode":"blitz","rating":1200}`); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
	if code, _ := call(t, r, http.MethodGet, "/queue/state?mode=blitz", ""); code != http.StatusOK {
		t.Errorf("state is public, got %d", code)
	}
}

func TestRatingWritesRequireInternalToken(t *testing.T) {
	cfg := testConfig()
	cfg.InternalToken = "svc-token"
	r := newTestRouter(t, cfg)

	body := `{"playerId":"A","opponentId":"B","score":1,"pool":"rapid"}`
	if code, _ := call(t, r, http.MethodPost, "/ratings/results", body); code != http.StatusUnauthorized {
		t.Errorf("results without token: expected 401, got %d", code)
	}
	if code, _ := call(t, r, http.MethodPost, "/api/v1/ratings/recalc", ""); code != http.StatusUnauthorized {
		t.Errorf("recalc without token: expected 401, got %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/ratings/results", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", "svc-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("results with token: expected 200, got %d", rec.Code)
	}

	if code, _ := call(t, r, http.MethodGet, "/ratings/A", ""); code != http.StatusOK {
		t.Errorf("reads stay public, got %d", code)
	}
}
