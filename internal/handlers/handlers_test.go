package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tariel-x/gomeet/internal/config"
	"github.com/tariel-x/gomeet/internal/directory"
	"github.com/tariel-x/gomeet/internal/invite"
	"github.com/tariel-x/gomeet/internal/meetings"
	"github.com/tariel-x/gomeet/internal/models"
	"github.com/tariel-x/gomeet/internal/notify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSearcher struct {
	results models.CandidateList
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, query string) (models.CandidateList, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubSender struct {
	mu   sync.Mutex
	sent []models.CandidateList
	err  error
}

func (s *stubSender) Send(ctx context.Context, items models.CandidateList, joinURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, items)
	return nil
}

func (s *stubSender) batches() []models.CandidateList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CandidateList(nil), s.sent...)
}

type stubPusher struct {
	mu        sync.Mutex
	delivered []string
	err       error
}

func (p *stubPusher) MeetingInvite(ctx context.Context, accountID, joinURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.delivered = append(p.delivered, accountID)
	return nil
}

type testEnv struct {
	handlers *Handlers
	router   *gin.Engine
	db       *gorm.DB
	meetings *meetings.Store
	sessions *invite.Registry
	hub      *WSHub
	search   *stubSearcher
	sender   *stubSender
	pusher   *stubPusher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.DirectoryRoom{}, &models.PushSubscription{}, &models.InviteRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		PublicURL:              "https://meet.test",
		JWTSecret:              "test-secret",
		LogLevel:               "info",
		DirectorySearchEnabled: true,
		DirectorySearchToken:   "dir-secret",
		DirectoryInviteEnabled: true,
		InviteServiceToken:     "invite-secret",
		DialOutEnabled:         true,
		QueryTypes:             []string{"user", "room"},
		VAPIDKeys: &config.VAPIDKeys{
			PublicKey:  "test-public",
			PrivateKey: "test-private",
			Subject:    "mailto:admin@meet.test",
		},
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	meetingStore := meetings.NewStore()
	hub := NewWSHub()
	search := &stubSearcher{}
	sender := &stubSender{}
	pusher := &stubPusher{}

	dispatcher := invite.NewDispatcher(invite.DispatcherConfig{
		Invites:          sender,
		DirectoryEnabled: true,
		DialOutEnabled:   true,
		Logger:           quiet,
	})

	registry := invite.NewRegistry(func(scope, meetingID string, events invite.Events) (*invite.Controller, error) {
		if _, err := meetingStore.GetByID(meetingID, time.Now()); err != nil {
			return nil, err
		}
		return invite.NewController(invite.ControllerConfig{
			Scope:     scope,
			MeetingID: meetingID,
			Search:    search,
			Dispatch:  dispatcher,
			JoinURL:   cfg.PublicURL + "/m/" + meetingID,
			Events:    events,
		}), nil
	})

	h := New(cfg, db, meetingStore, registry, hub, nil, directory.NewStore(db), notify.NewDelivery(pusher, quiet))

	router := gin.New()
	api := router.Group("/api/v1")
	{
		api.GET("/config", h.GetClientConfig)

		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.GET("/auth/me", h.AuthMiddleware(), h.GetMe)

		api.POST("/meetings", h.CreateMeeting)
		api.GET("/meetings", h.ListMeetings)
		api.GET("/meetings/:meeting_id", h.GetMeeting)
		api.POST("/meetings/:meeting_id/join", h.JoinMeeting)
		api.DELETE("/meetings/:meeting_id", h.EndMeeting)
		api.GET("/meetings/:meeting_id/invites", h.ListInviteRecords)
		api.POST("/meetings/:meeting_id/invite-sessions", h.LaunchInviteSession)

		api.POST("/invite-sessions/:scope/search", h.SearchInviteSession)
		api.POST("/invite-sessions/:scope/submit", h.SubmitInviteSession)
		api.DELETE("/invite-sessions/:scope", h.CloseInviteSession)

		api.GET("/push/vapid-public-key", h.GetVAPIDPublicKey)
		api.POST("/push/subscribe", h.AuthMiddleware(), h.SubscribePush)
		api.POST("/push/unsubscribe", h.AuthMiddleware(), h.UnsubscribePush)

		api.POST("/rooms", h.AuthMiddleware(), h.CreateRoom)
		api.GET("/rooms", h.ListRooms)

		provider := api.Group("/provider")
		{
			provider.GET("/search", RequireServiceToken(cfg.DirectorySearchToken), h.SearchDirectory)
			provider.GET("/dial-check", h.CheckDialOut)
			provider.POST("/invite", RequireServiceToken(cfg.InviteServiceToken), h.ReceiveInvite)
		}
	}

	return &testEnv{
		handlers: h,
		router:   router,
		db:       db,
		meetings: meetingStore,
		sessions: registry,
		hub:      hub,
		search:   search,
		sender:   sender,
		pusher:   pusher,
	}
}

func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}
