package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/infrasutra/portfolio/internal/config"
	"github.io/infrasutra/portfolio/internal/content"
	"github.io/infrasutra/portfolio/internal/mailer"
	"github.io/infrasutra/portfolio/internal/relay"
	"github.io/infrasutra/portfolio/internal/sse"
	"github.io/infrasutra/portfolio/internal/store"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var testAssets = fstest.MapFS{
	"index.html":   {Data: []byte("<html>portfolio</html>")},
	"css/site.css": {Data: []byte("body{}")},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, sink *Sink) (*Server, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	mail := config.Mail{Host: "smtp.example.com", Port: 587, Username: "me@example.com", Password: "p", To: "inbox@example.com"}
	rh := relay.NewHandler(mail, func(config.Mail) mailer.Sender { return sender }, discardLogger())
	return NewServer(content.Default(), rh, sink, testAssets, discardLogger()), sender
}

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(ctx))
	return &Sink{Store: db, Hub: sse.NewHub()}
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

const validPayload = `{"name":"Ada","email":"ada@example.com","subject":"Hi","message":"Hello"}`

func TestRelayMountedOnBothPaths(t *testing.T) {
	server, sender := newTestServer(t, nil)

	for _, p := range RelayPaths {
		rec := do(server, http.MethodPost, p, validPayload)
		assert.Equal(t, http.StatusOK, rec.Code, p)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	assert.Equal(t, 2, sender.count())

	rec := do(server, http.MethodOptions, "/api/contact", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, sender.count())

	rec = do(server, http.MethodGet, "/api/contact", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRolesEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := do(server, http.MethodGet, "/api/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Roles []struct {
			Primary   string `json:"primary"`
			Localized string `json:"localized"`
		} `json:"roles"`
		Placeholder string `json:"placeholder"`
		Width       int    `json:"width"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Roles, 4)
	assert.Equal(t, "デザイナー", body.Roles[0].Localized)
	assert.Equal(t, "インターフェース", body.Placeholder)
	assert.Equal(t, 16, body.Width)
}

func TestProjectsEndpointPaginates(t *testing.T) {
	server, _ := newTestServer(t, nil)

	type card struct {
		Title          string `json:"title"`
		Position       int    `json:"position"`
		AnimationDelay string `json:"animationDelay"`
	}
	var page struct {
		Items   []card `json:"items"`
		Page    int    `json:"page"`
		Total   int    `json:"total"`
		HasNext bool   `json:"hasNext"`
	}

	rec := do(server, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Len(t, page.Items, 4)
	assert.False(t, page.HasNext)
	assert.Equal(t, "0.2s", page.Items[0].AnimationDelay)

	rec = do(server, http.MethodGet, "/api/projects?page=2&limit=3", "")
	decode(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, "Veracity - Digital Signature App", page.Items[0].Title)
	assert.Equal(t, 3, page.Items[0].Position)
	assert.Equal(t, "0.5s", page.Items[0].AnimationDelay)

	for _, query := range []string{
		"page=2147483647&limit=100",
		"page=1073741825&limit=2",
		"page=21474837&limit=100",
	} {
		var far struct {
			Items   []card `json:"items"`
			HasNext bool   `json:"hasNext"`
		}
		rec = do(server, http.MethodGet, "/api/projects?"+query, "")
		require.Equal(t, http.StatusOK, rec.Code, query)
		decode(t, rec, &far)
		assert.Empty(t, far.Items, query)
		assert.False(t, far.HasNext, query)
	}
}

func TestSkillsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := do(server, http.MethodGet, "/api/skills", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Categories   []content.SkillCategory `json:"categories"`
		Competencies []string                `json:"competencies"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Categories, 4)
	assert.Contains(t, body.Competencies, "Design Thinking")
}

func TestUnknownAPIRouteIsJSON404(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := do(server, http.MethodGet, "/api/sink/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "sink routes absent when the sink is off")
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}

func TestStaticSite(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := do(server, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portfolio")

	rec = do(server, http.MethodGet, "/css/site.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())

	rec = do(server, http.MethodGet, "/about", "")
	assert.Equal(t, http.StatusOK, rec.Code, "page routes fall back to index")
	assert.Contains(t, rec.Body.String(), "portfolio")

	rec = do(server, http.MethodGet, "/js/missing.js", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(server, http.MethodPost, "/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStaticSiteMissingAssets(t *testing.T) {
	sender := &fakeSender{}
	rh := relay.NewHandler(config.Mail{}, func(config.Mail) mailer.Sender { return sender }, discardLogger())
	server := NewServer(content.Default(), rh, nil, nil, discardLogger())

	rec := do(server, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	server, _ := newTestServer(t, newTestSink(t))

	rec := do(server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(server, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestReadyFailsWhenStoreClosed(t *testing.T) {
	sink := newTestSink(t)
	server, _ := newTestServer(t, sink)
	require.NoError(t, sink.Store.Close())

	rec := do(server, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := do(server, http.MethodGet, "/health", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	m := &middleware{logger: discardLogger()}
	var seenID string
	h := m.RequestID(m.Recover(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		panic("boom")
	})))

	rec := do(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.NotEmpty(t, seenID)
}

func TestRecoverAfterHeadersSent(t *testing.T) {
	m := &middleware{logger: discardLogger()}
	h := m.Logger(m.Recover(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		panic("boom")
	})))

	rec := do(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestRecoverAfterImplicitWrite(t *testing.T) {
	m := &middleware{logger: discardLogger()}
	h := m.Recover(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("streamed"))
		panic("boom")
	}))

	rec := do(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "streamed", rec.Body.String())
}

func insertCaptured(t *testing.T, sink *Sink, id string, at time.Time) {
	t.Helper()
	require.NoError(t, sink.Store.InsertMessage(context.Background(), store.Message{
		ID:        id,
		From:      "me@example.com",
		ReplyTo:   "Ada <ada@example.com>",
		Subject:   "[Portfolio] " + id,
		TextBody:  "Name: Ada",
		Raw:       []byte("Subject: [Portfolio] " + id + "\r\n\r\nName: Ada\r\n"),
		RawSize:   int64(len(id)),
		CreatedAt: at,
	}, []store.Recipient{
		{Email: "inbox@example.com", Type: "to"},
		{Email: "copy@example.com", Type: "cc"},
	}))
}

func TestSinkMessages(t *testing.T) {
	sink := newTestSink(t)
	server, _ := newTestServer(t, sink)
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	insertCaptured(t, sink, "first", base)
	insertCaptured(t, sink, "second", base.Add(time.Minute))
	insertCaptured(t, sink, "third", base.Add(2*time.Minute))

	var page struct {
		Items   []messageSummary `json:"items"`
		Total   int              `json:"total"`
		HasNext bool             `json:"hasNext"`
	}
	rec := do(server, http.MethodGet, "/api/sink/messages?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "third", page.Items[0].ID)
	assert.Equal(t, []string{"inbox@example.com"}, page.Items[0].To)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasNext)

	var detail messageDetail
	rec = do(server, http.MethodGet, "/api/sink/messages/first", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &detail)
	assert.Equal(t, "Ada <ada@example.com>", detail.ReplyTo)
	assert.Equal(t, []string{"copy@example.com"}, detail.Cc)
	assert.Equal(t, "2026-04-01T00:00:00Z", detail.CreatedAt)

	rec = do(server, http.MethodGet, "/api/sink/messages/first/raw", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "message/rfc822", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Subject: [Portfolio] first")

	rec = do(server, http.MethodDelete, "/api/sink/messages/first", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(server, http.MethodDelete, "/api/sink/messages/first", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(server, http.MethodGet, "/api/sink/messages/first", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Message not found"}`, rec.Body.String())
}

func TestSinkStream(t *testing.T) {
	sink := newTestSink(t)
	server, _ := newTestServer(t, sink)
	ts := httptest.NewServer(server)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sink/stream?to=Inbox@Example.com", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ready\n", line)
	_, _ = reader.ReadString('\n')
	_, _ = reader.ReadString('\n')

	require.Eventually(t, func() bool {
		n, err := sink.Hub.Publish([]string{"inbox@example.com"}, sse.Event{Name: "message", Data: map[string]string{"id": "x"}})
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: message\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `data: {"id":"x"}`+"\n", line)
}
