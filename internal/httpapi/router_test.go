package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/helpem/internal/assistant"
	"github.com/chris/helpem/internal/auth"
	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/conversation"
	"github.com/chris/helpem/internal/events"
	"github.com/chris/helpem/internal/llm/llmtest"
	"github.com/chris/helpem/internal/oracle"
	"github.com/chris/helpem/internal/quota"
	"github.com/chris/helpem/internal/store"
	"github.com/chris/helpem/internal/voice"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var monday9am = time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)

const (
	addMilk = `{"action":"add","type":"task","title":"Buy milk","priority":"medium"}`
	sayHi   = `{"action":"respond","message":"Hi there."}`
)

type env struct {
	router *Router
	client *llmtest.Client
	stores *store.MemoryProvider
	events *events.Recorder
}

func newEnv(t *testing.T, client *llmtest.Client, edit ...func(*Deps)) *env {
	t.Helper()
	e := &env{client: client, stores: store.NewMemoryProvider(), events: &events.Recorder{}}
	clock := func() time.Time { return monday9am }
	gate := quota.NewMemory(quota.DefaultLimitUSD, clock)

	pipeline := assistant.New(oracle.New(client, gate), assistant.WithLocation(time.UTC), assistant.WithClock(clock))
	var ids atomic.Int64
	manager := conversation.NewManager(pipeline, e.stores,
		conversation.WithEvents(e.events),
		conversation.WithClock(clock),
		conversation.WithLocation(time.UTC),
		conversation.WithIDs(func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }),
	)

	d := Deps{
		Pipeline: pipeline,
		Sessions: manager,
		Stores:   e.stores,
		Quota:    gate,
		OwnerID:  "owner",
		Events:   e.events,
		Location: time.UTC,
		Clock:    clock,
	}
	for _, fn := range edit {
		fn(&d)
	}
	e.router = NewRouter(d)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func (e *env) tasks(t *testing.T, user string) []commitment.Task {
	t.Helper()
	snap, err := e.stores.ForUser(user).List(context.Background())
	require.NoError(t, err)
	return snap.Tasks
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	e := newEnv(t, llmtest.New(sayHi))
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/readyz", nil).Code)

	down := newEnv(t, llmtest.New(sayHi), func(d *Deps) {
		d.Ready = []Check{func(context.Context) error { return errors.New("db down") }}
	})
	w := down.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestChatReturnsDecision(t *testing.T) {
	e := newEnv(t, llmtest.New(addMilk))

	w := e.do(t, http.MethodPost, "/api/chat", map[string]any{
		"message":         "I need to buy milk",
		"currentDateTime": "2026-01-12T09:00:00-08:00",
		"conversationHistory": []map[string]string{
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "Hello."},
			{"role": "system", "content": "ignored"},
		},
		"commitments": map[string]any{"tasks": []any{}, "routines": []any{}, "appointments": []any{}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, "add", out["type"])
	assert.Equal(t, "task", out["kind"])
	assert.Equal(t, "Buy milk", out["title"])
	assert.Equal(t, "medium", out["priority"])

	calls := e.client.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Messages, 3, "two history turns plus the utterance")
	assert.Contains(t, calls[0].System, "Monday, January 12th at 9:00 AM")
	assert.Empty(t, e.tasks(t, "owner"), "stateless chat never writes")
}

func TestChatMalformedReplyBecomesRespond(t *testing.T) {
	e := newEnv(t, llmtest.New("Sure, I can help with that."))

	w := e.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "respond", out["type"])
	assert.Equal(t, "Sure, I can help with that.", out["message"])
}

func TestChatErrors(t *testing.T) {
	t.Run("missing message", func(t *testing.T) {
		e := newEnv(t, llmtest.New(sayHi))
		w := e.do(t, http.MethodPost, "/api/chat", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, e.client.CallCount())
	})

	t.Run("bad time", func(t *testing.T) {
		e := newEnv(t, llmtest.New(sayHi))
		w := e.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi", "currentDateTime": "1/12/2026"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oracle unavailable", func(t *testing.T) {
		e := newEnv(t, &llmtest.Client{Err: errors.New("connection reset by peer")})
		w := e.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
		assert.Equal(t, "Sorry, something went wrong. Please try again.", decode(t, w)["error"])
	})

	t.Run("quota exceeded", func(t *testing.T) {
		client := llmtest.New(sayHi)
		e := newEnv(t, client, func(d *Deps) {
			gate := quota.NewMemory(0, nil)
			d.Quota = gate
			d.Pipeline = assistant.New(oracle.New(client, gate))
		})
		w := e.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "quota_exceeded", decode(t, w)["code"])
		assert.Zero(t, client.CallCount())
	})
}

func TestSessionConfirmFlow(t *testing.T) {
	e := newEnv(t, llmtest.New(addMilk))

	w := e.do(t, http.MethodPost, "/api/sessions/phone/messages", map[string]any{"utterance": "buy milk"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, string(conversation.StatePending), out["state"])

	w = e.do(t, http.MethodPost, "/api/sessions/phone/confirm", map[string]any{"priority": "high"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Done! Added to your tasks.", decode(t, w)["message"])

	w = e.do(t, http.MethodGet, "/api/commitments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap commitment.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "Buy milk", snap.Tasks[0].Title)
	assert.Equal(t, commitment.PriorityHigh, snap.Tasks[0].Priority)

	require.Len(t, e.events.Events(), 1)
	assert.Equal(t, "owner", e.events.Events()[0].UserID)

	w = e.do(t, http.MethodGet, "/api/sessions/phone", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view conversation.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, conversation.StateIdle, view.State)
	assert.Len(t, view.History, 3, "utterance, proposal and confirmation")
}

func TestConfirmWithoutPending(t *testing.T) {
	e := newEnv(t, llmtest.New(sayHi))

	w := e.do(t, http.MethodPost, "/api/sessions/phone/confirm", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no_pending_action", decode(t, w)["code"])

	w = e.do(t, http.MethodPost, "/api/sessions/phone/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConfirmRejectsBadOverride(t *testing.T) {
	e := newEnv(t, llmtest.New(addMilk))
	e.do(t, http.MethodPost, "/api/sessions/phone/messages", map[string]any{"utterance": "buy milk"})

	w := e.do(t, http.MethodPost, "/api/sessions/phone/confirm", map[string]any{"priority": "extreme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, e.tasks(t, "owner"))
}

func TestCompleteTaskAndRoutine(t *testing.T) {
	e := newEnv(t, llmtest.New(sayHi))
	ctx := context.Background()
	st := e.stores.ForUser("owner")
	require.NoError(t, st.Add(ctx, commitment.Task{ID: "t1", Title: "Buy milk", Priority: commitment.PriorityMedium}))
	require.NoError(t, st.Add(ctx, commitment.Routine{ID: "r1", Title: "Exercise", Frequency: commitment.Daily}))

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/api/tasks/t1/complete", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/tasks/nope/complete", nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/api/routines/r1/completions", nil).Code)

	snap, err := st.List(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Tasks[0].CompletedAt)
	assert.True(t, snap.Tasks[0].CompletedAt.Equal(monday9am))
	assert.True(t, snap.Routines[0].CompletedOn(monday9am))

	evs := e.events.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TaskCompleted, evs[0].Type)
	assert.Equal(t, events.RoutineCompleted, evs[1].Type)
}

func TestUsage(t *testing.T) {
	e := newEnv(t, llmtest.New(sayHi))
	e.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})

	w := e.do(t, http.MethodGet, "/api/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var s quota.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, int64(1), s.RequestCount)
	assert.Equal(t, 1, s.Month)
}

type acceptVerifier struct{}

func (acceptVerifier) Verify(_ context.Context, token, _ string) error {
	switch token {
	case "good":
		return nil
	case "apple-down":
		return fmt.Errorf("%w: status 503", auth.ErrKeysUnavailable)
	}
	return fmt.Errorf("%w: bad token", auth.ErrAuthFailed)
}

func TestAuthentication(t *testing.T) {
	svc := auth.NewService(auth.NewSessions("secret"), acceptVerifier{}, auth.NewMemoryUsers(), nil)
	e := newEnv(t, llmtest.New(sayHi), func(d *Deps) { d.Auth = svc })

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/commitments", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/commitments", nil, "Authorization", "Bearer junk").Code)

	w := e.do(t, http.MethodPost, "/api/auth/apple", map[string]any{"apple_user_id": "a1", "identity_token": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/apple", map[string]any{"apple_user_id": "a1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/apple", map[string]any{"apple_user_id": "a1", "identity_token": "apple-down"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/apple", map[string]any{"apple_user_id": "a1", "identity_token": "good"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res auth.SignInResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.IsNewUser)

	require.NoError(t, e.stores.ForUser(res.UserID).Add(context.Background(), commitment.Task{ID: "t1", Title: "Mine"}))
	w = e.do(t, http.MethodGet, "/api/commitments", nil, "Authorization", "Bearer "+res.SessionToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Mine")
}

type fakeVoice struct {
	gotAudio []byte
	gotType  string
	gotVoice string
}

func (f *fakeVoice) Transcribe(_ context.Context, audio []byte, contentType string) (string, error) {
	f.gotAudio, f.gotType = audio, contentType
	return "buy milk", nil
}

func (f *fakeVoice) Speak(_ context.Context, text, v string) ([]byte, error) {
	f.gotVoice = v
	if text == "fail" {
		return nil, fmt.Errorf("%w: upstream", voice.ErrSpeechFailed)
	}
	return []byte("ID3"), nil
}

func TestTranscribe(t *testing.T) {
	fv := &fakeVoice{}
	e := newEnv(t, llmtest.New(sayHi), func(d *Deps) { d.Transcriber = fv })

	r := httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader("RIFF"))
	r.Header.Set("Content-Type", "audio/wav")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "buy milk", decode(t, w)["text"])
	assert.Equal(t, "audio/wav", fv.gotType)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "clip.m4a")
	require.NoError(t, err)
	_, _ = part.Write([]byte("m4a-bytes"))
	require.NoError(t, mw.Close())

	r = httptest.NewRequest(http.MethodPost, "/api/transcribe", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []byte("m4a-bytes"), fv.gotAudio)

	r = httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader(""))
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpeak(t *testing.T) {
	fv := &fakeVoice{}
	e := newEnv(t, llmtest.New(sayHi), func(d *Deps) { d.Speaker = fv })

	w := e.do(t, http.MethodPost, "/api/tts", map[string]any{"text": "Hello", "voice": "alloy"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "ID3", w.Body.String())
	assert.Equal(t, "alloy", fv.gotVoice)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/tts", map[string]any{"text": "Hello", "voice": "robot"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/tts", map[string]any{"text": "  "}).Code)
	assert.Equal(t, http.StatusBadGateway, e.do(t, http.MethodPost, "/api/tts", map[string]any{"text": "fail"}).Code)
}

func TestVoiceNotConfigured(t *testing.T) {
	e := newEnv(t, llmtest.New(sayHi))
	assert.Equal(t, http.StatusNotImplemented, e.do(t, http.MethodPost, "/api/tts", map[string]any{"text": "Hello"}).Code)
}
