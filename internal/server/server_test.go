package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/haggle-go/internal/bus"
	"github.com/dayuer/haggle-go/internal/decision"
	"github.com/dayuer/haggle-go/internal/lane"
	"github.com/dayuer/haggle-go/internal/listing"
	"github.com/dayuer/haggle-go/internal/logger"
	"github.com/dayuer/haggle-go/internal/session"
	"github.com/dayuer/haggle-go/internal/strategy"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, ref string) (*listing.Listing, error) {
	if !strings.Contains(ref, "iid-") {
		return nil, errors.Wrap(listing.ErrInvalidReference, ref)
	}
	return &listing.Listing{
		ID:       "olx-1821022551",
		Platform: "olx",
		Title:    "Royal Enfield Classic 350",
		Price:    100000,
		Category: "vehicles",
	}, nil
}

func (stubResolver) Category(name string) listing.Category {
	return listing.DefaultCategories().Named(name)
}

func newTestServer(t *testing.T, apiKey string) (*Server, *httptest.Server) {
	t.Helper()
	b := bus.New(bus.Config{Logger: logger.Discard()})
	lanes := lane.NewManager(lane.ManagerConfig{Logger: logger.Discard()})
	pipeline := decision.NewPipeline(nil, decision.WithPipelineLogger(logger.Discard()))
	m, err := session.NewManager(stubResolver{}, pipeline, b, session.Options{
		Lanes:  lanes,
		Logger: logger.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	s := New(Config{
		APIKey:   apiKey,
		Sessions: m,
		Market:   stubResolver{},
		Bus:      b,
		Lanes:    lanes,
		Pipeline: pipeline,
		Logger:   logger.Discard(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		lanes.Stop()
	})
	return s, ts
}

const createBody = `{"productReference":"https://www.olx.in/item/royal-enfield-iid-1821022551","targetPrice":75000,"maxBudget":90000,"approach":"diplomatic","timeline":"week"}`

func do(t *testing.T, method, url, body string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, base+"/api/sessions", createBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
	id, _ := body["sessionId"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHandleHealth(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp, body := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuth(t *testing.T) {
	_, ts := newTestServer(t, "secret-key")

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/status", "", http.Header{"Authorization": {"Bearer secret-key"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSession(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", createBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	listingBody, ok := body["productListing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Royal Enfield Classic 350", listingBody["title"])
}

func TestCreateSession_BadRequests(t *testing.T) {
	_, ts := newTestServer(t, "")

	tests := []struct {
		name, body string
	}{
		{"invalid json", `{`},
		{"target above budget", `{"productReference":"https://www.olx.in/item/x-iid-1821022551","targetPrice":95000,"maxBudget":90000}`},
		{"unknown approach", `{"productReference":"https://www.olx.in/item/x-iid-1821022551","targetPrice":75000,"maxBudget":90000,"approach":"sneaky"}`},
		{"malformed reference", `{"productReference":"https://www.olx.in/item","targetPrice":75000,"maxBudget":90000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}

	_, body := do(t, http.MethodGet, ts.URL+"/api/sessions", "", nil)
	assert.EqualValues(t, 0, body["total"])
}

func TestGetAndListSessions(t *testing.T) {
	_, ts := newTestServer(t, "")
	id := createSession(t, ts.URL)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/sessions/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["sessionId"])
	assert.Equal(t, "created", body["state"])

	_, body = do(t, http.MethodGet, ts.URL+"/api/sessions", "", nil)
	assert.EqualValues(t, 1, body["total"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/sessions/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestControlEndpoints(t *testing.T) {
	_, ts := newTestServer(t, "")
	id := createSession(t, ts.URL)
	base := ts.URL + "/api/sessions/" + id

	resp, body := do(t, http.MethodPost, base+"/pause", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", body["state"])

	resp, body = do(t, http.MethodPost, base+"/resume", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "created", body["state"], "nobody connected yet")

	resp, _ = do(t, http.MethodPost, base+"/resume", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, http.MethodPost, base+"/reset", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ended", body["state"])
	assert.Equal(t, "failure", body["outcome"])

	resp, _ = do(t, http.MethodPost, base+"/explode", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/sessions/unknown/pause", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t, "")
	createSession(t, ts.URL)

	_, body := do(t, http.MethodGet, ts.URL+"/api/status", "", nil)
	sessions, ok := body["sessions"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, sessions["total"])
	assert.Contains(t, body, "lanes")
	assert.Equal(t, []any{"rules"}, body["tiers"])
}

func TestMarketAnalysis(t *testing.T) {
	_, ts := newTestServer(t, "")

	resp, body := do(t, http.MethodPost, ts.URL+"/api/market-analysis", createBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "counter-offer", body["recommendedAction"])
	assert.EqualValues(t, 90000, body["recommendedOpeningOffer"])

	market, ok := body["market"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "General", market["category"])
	assert.Equal(t, listing.PositionPremium, market["position"])
	assert.EqualValues(t, 0.3, market["negotiationPotential"])

	_, body = do(t, http.MethodGet, ts.URL+"/api/sessions", "", nil)
	assert.EqualValues(t, 0, body["total"], "analysis does not create a session")

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/market-analysis", `{"productReference":"https://www.olx.in/item","targetPrice":75000,"maxBudget":90000}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/market-analysis", `{"productReference":"https://www.olx.in/item/x-iid-1","targetPrice":95000,"maxBudget":90000}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSellerResponse_Rejects(t *testing.T) {
	_, ts := newTestServer(t, "")
	id := createSession(t, ts.URL)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/seller-response", `{"sessionId":"unknown","message":"80,000"}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/seller-response", `{"sessionId":"`+id+`","message":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/seller-response", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// --- WebSocket ---

func dial(t *testing.T, ts *httptest.Server, role, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + role + "/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readUntil(t *testing.T, conn *websocket.Conn, frameType string) []frame {
	t.Helper()
	var seen []frame
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s after %v", frameType, seen)
		seen = append(seen, f)
		if f.Type == frameType {
			return seen
		}
	}
}

func TestWebSocket_NegotiationToDeal(t *testing.T) {
	s, ts := newTestServer(t, "")
	id := createSession(t, ts.URL)

	buyer := dial(t, ts, "buyer", id)
	frames := readUntil(t, buyer, bus.FrameConnected)
	assert.Len(t, frames, 1)

	seller := dial(t, ts, "seller", id)
	readUntil(t, seller, bus.FrameConnected)
	readUntil(t, buyer, bus.FrameSellerOnline)

	opening := readUntil(t, seller, bus.FrameAIResponse)
	var move session.Message
	require.NoError(t, json.Unmarshal(opening[len(opening)-1].Payload, &move))
	require.NotNil(t, move.Decision)
	assert.Equal(t, strategy.ActionCounter, move.Decision.Action)
	assert.Equal(t, int64(90000), move.Decision.Price)
	assert.Equal(t, 2, s.WSConnectionCount())

	require.NoError(t, seller.WriteJSON(bus.InboundFrame{Type: "message", Content: "Okay, 80,000 final"}))

	frames = readUntil(t, seller, bus.FrameSessionEnded)
	var end session.EndPayload
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Payload, &end))
	assert.Equal(t, session.OutcomeSuccess, end.Outcome)
	assert.Equal(t, int64(80000), end.FinalPrice)

	readUntil(t, buyer, bus.FrameSessionEnded)

	// The socket is closed after session_ended.
	seller.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := seller.ReadMessage()
	assert.Error(t, err)

	_, body := do(t, http.MethodGet, ts.URL+"/api/sessions/"+id, "", nil)
	assert.Equal(t, "ended", body["state"])
	assert.Equal(t, "success", body["outcome"])
}

func TestWebSocket_AttachAfterEnd(t *testing.T) {
	_, ts := newTestServer(t, "")
	id := createSession(t, ts.URL)
	resp, _ := do(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/reset", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn := dial(t, ts, "seller", id)
	frames := readUntil(t, conn, bus.FrameSessionEnded)
	assert.Len(t, frames, 1)
}

func TestWebSocket_UnknownFrameType(t *testing.T) {
	_, ts := newTestServer(t, "")
	id := createSession(t, ts.URL)

	conn := dial(t, ts, "buyer", id)
	readUntil(t, conn, bus.FrameConnected)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "typing"}))
	readUntil(t, conn, bus.FrameError)
}

func TestWebSocket_Rejects(t *testing.T) {
	_, ts := newTestServer(t, "")
	id := createSession(t, ts.URL)
	base := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/auditor/"+id, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"/ws/buyer/unknown", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.Wrap(strategy.ErrConfigInvalid, "x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.Wrap(listing.ErrInvalidReference, "x")))
	assert.Equal(t, http.StatusNotFound, statusFor(errors.Wrap(session.ErrSessionNotFound, "x")))
	assert.Equal(t, http.StatusConflict, statusFor(errors.Wrap(session.ErrInvalidTransition, "x")))
	assert.Equal(t, http.StatusNotFound, statusFor(bus.ErrUnknownSession))
	assert.Equal(t, http.StatusConflict, statusFor(bus.ErrSessionEnded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestLatencyWindow(t *testing.T) {
	w := newLatencyWindow(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.Record(100 * time.Millisecond)
	w.Record(300 * time.Millisecond)
	avg, n := w.Avg()
	assert.Equal(t, int64(200), avg)
	assert.Equal(t, int64(2), n)

	now = now.Add(2 * time.Minute)
	avg, n = w.Avg()
	assert.Zero(t, avg)
	assert.Zero(t, n)
}

func TestSellerResponse_OverHTTP(t *testing.T) {
	_, ts := newTestServer(t, "")
	id := createSession(t, ts.URL)

	buyer := dial(t, ts, "buyer", id)
	seller := dial(t, ts, "seller", id)
	readUntil(t, buyer, bus.FrameAIResponse)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/seller-response", `{"sessionId":"`+id+`","message":"Okay, 80,000 and it's yours"}`, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	frames := readUntil(t, buyer, bus.FrameSessionEnded)
	var end session.EndPayload
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Payload, &end))
	assert.Equal(t, session.OutcomeSuccess, end.Outcome)
	assert.Equal(t, int64(80000), end.FinalPrice)
	readUntil(t, seller, bus.FrameSessionEnded)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/seller-response", `{"sessionId":"`+id+`","message":"wait"}`, nil)
	assert.NotEqual(t, http.StatusAccepted, resp.StatusCode)
}
