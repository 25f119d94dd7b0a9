package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/tariel-x/gomeet/internal/dialout"
	"github.com/tariel-x/gomeet/internal/models"
)

func TestProviderSearch(t *testing.T) {
	env := newTestEnv(t)
	for _, username := range []string{"alice", "alina", "bob"} {
		if err := env.db.Create(&models.Account{Username: username}).Error; err != nil {
			t.Fatalf("seed account %s: %v", username, err)
		}
	}

	w := env.serve(jsonRequest(t, http.MethodGet, "/api/v1/provider/search?query=ali&types=user&jwt=dir-secret", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("search: status %d, body %s", w.Code, w.Body.String())
	}
	var results models.CandidateList
	decodeBody(t, w, &results)
	if len(results) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %v", len(results), results)
	}
	for _, c := range results {
		if c.Type() != models.CandidateTypeUser {
			t.Errorf("expected only user candidates, got %v", c.Type())
		}
	}

	// The invite-service style "token" parameter works as well.
	w = env.serve(jsonRequest(t, http.MethodGet, "/api/v1/provider/search?query=ali&token=dir-secret", nil))
	if w.Code != http.StatusOK {
		t.Errorf("search with token param: status %d", w.Code)
	}

	w = env.serve(jsonRequest(t, http.MethodGet, "/api/v1/provider/search?query=ali&jwt=wrong", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a bad token, got %d", w.Code)
	}

	w = env.serve(jsonRequest(t, http.MethodGet, "/api/v1/provider/search?query=ali", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a missing token, got %d", w.Code)
	}
}

func TestProviderDialCheck(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		phone   string
		allow   bool
		result  string
		country string
	}{
		{"15551234567", true, "+15551234567", "US"},
		{"442071838750", true, "+442071838750", ""},
		{"123", false, "+123", ""},
		{"+15551234567", false, "+15551234567", ""}, // policy wants bare digits
	}

	for _, tc := range cases {
		w := env.serve(jsonRequest(t, http.MethodGet, "/api/v1/provider/dial-check?phone="+tc.phone, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("dial-check %q: status %d", tc.phone, w.Code)
		}
		var result dialout.CheckResult
		decodeBody(t, w, &result)
		if result.Allow != tc.allow {
			t.Errorf("dial-check %q: allow = %v, expected %v", tc.phone, result.Allow, tc.allow)
		}
		if result.Country != tc.country {
			t.Errorf("dial-check %q: country = %q, expected %q", tc.phone, result.Country, tc.country)
		}
	}
}

func TestProviderReceiveInvite(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"invited": []map[string]string{
			{"type": "user", "id": "acc-1", "name": "Alice"},
			{"type": "room", "id": "r1", "name": "weekly"},
		},
		"url": "https://meet.test/m/abc",
	}

	w := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/provider/invite?token=invite-secret", body))
	if w.Code != http.StatusOK {
		t.Fatalf("invite: status %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Sent int `json:"sent"`
	}
	decodeBody(t, w, &resp)
	if resp.Sent != 1 {
		t.Errorf("expected 1 push sent, got %d", resp.Sent)
	}
	if len(env.pusher.delivered) != 1 || env.pusher.delivered[0] != "acc-1" {
		t.Errorf("expected a push for acc-1, got %v", env.pusher.delivered)
	}

	w = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/provider/invite?token=nope", body))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a bad token, got %d", w.Code)
	}

	w = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/provider/invite?token=invite-secret", map[string]any{"url": "x"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without invited, got %d", w.Code)
	}
}

func TestProviderReceiveInviteAllFailed(t *testing.T) {
	env := newTestEnv(t)
	env.pusher.err = errors.New("push gateway down")

	body := map[string]any{
		"invited": []map[string]string{{"type": "user", "id": "acc-1", "name": "Alice"}},
		"url":     "https://meet.test/m/abc",
	}

	w := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/provider/invite?token=invite-secret", body))
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when every push fails, got %d", w.Code)
	}
}
