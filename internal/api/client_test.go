package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := NewClient(Config{BaseURL: ts.URL + "/", Token: "secret-token"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}, zerolog.Nop()); err == nil {
		t.Error("Expected error for empty base URL")
	}
}

func TestClient_WorkingHours(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/attendance/42/working-hours" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("Expected X-Request-ID header")
		}
		_, _ = io.WriteString(w, `{"total_online_seconds": 3600, "total_offline_seconds": 120, "is_currently_online": true}`)
	})

	wh, err := client.WorkingHours(context.Background(), "42")
	if err != nil {
		t.Fatalf("WorkingHours failed: %v", err)
	}
	if wh.TotalOnlineSeconds != 3600 || wh.TotalOfflineSeconds != 120 || !wh.IsCurrentlyOnline {
		t.Errorf("Unexpected working hours %+v", wh)
	}
}

func TestClient_WorkingHoursLegacyTotal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"total_seconds": 900, "total_offline_seconds": 30, "is_currently_online": false}`)
	})

	wh, err := client.WorkingHours(context.Background(), "7")
	if err != nil {
		t.Fatalf("WorkingHours failed: %v", err)
	}
	if wh.TotalOnlineSeconds != 900 {
		t.Errorf("Expected total_seconds fallback of 900, got %d", wh.TotalOnlineSeconds)
	}
	if wh.IsCurrentlyOnline {
		t.Error("Expected offline")
	}
}

func TestClient_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message": "token expired"}`)
	})

	_, err := client.WorkingHours(context.Background(), "1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", statusErr.StatusCode)
	}
	if statusErr.Message != "token expired" {
		t.Errorf("Expected message 'token expired', got %q", statusErr.Message)
	}
}

func TestClient_ChangeStatus(t *testing.T) {
	var got StatusChange
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/attendance/status" {
			t.Errorf("Unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"success": true}`)
	})

	err := client.ChangeStatus(context.Background(), StatusChange{AttendanceID: "42", IsOnline: false, Reason: "lunch"})
	if err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}
	if got.AttendanceID != "42" || got.IsOnline || got.Reason != "lunch" {
		t.Errorf("Unexpected request body %+v", got)
	}
}

func TestClient_ChangeStatusRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success": false, "message": "already offline"}`)
	})

	err := client.ChangeStatus(context.Background(), StatusChange{AttendanceID: "42"})
	if !errors.Is(err, ErrStatusRejected) {
		t.Errorf("Expected ErrStatusRejected, got %v", err)
	}
}

func TestClient_CheckIn(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
			return
		}
		if r.FormValue("user_id") != "u-1" {
			t.Errorf("Expected user_id u-1, got %q", r.FormValue("user_id"))
		}
		if r.FormValue("latitude") != "1.5" || r.FormValue("longitude") != "-2.25" {
			t.Errorf("Unexpected coordinates %q,%q", r.FormValue("latitude"), r.FormValue("longitude"))
		}
		if r.FormValue("work_location") != "work_from_home" {
			t.Errorf("Expected work_from_home, got %q", r.FormValue("work_location"))
		}
		file, header, err := r.FormFile("selfie")
		if err != nil {
			t.Errorf("Expected selfie file: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		if header.Filename != "me.jpg" || string(data) != "jpeg-bytes" {
			t.Errorf("Unexpected selfie %s %q", header.Filename, data)
		}
		_, _ = io.WriteString(w, `{"id": 99, "check_in": "2024-03-04T09:00:00Z", "total_hours": 0, "work_location": "work_from_home"}`)
	})

	att, err := client.CheckIn(context.Background(), CheckInRequest{
		UserID:       "u-1",
		Location:     Geolocation{Latitude: 1.5, Longitude: -2.25},
		WorkLocation: LocationWorkFromHome,
		Selfie:       strings.NewReader("jpeg-bytes"),
		SelfieName:   "me.jpg",
	})
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if att.ID != "99" {
		t.Errorf("Expected numeric id decoded as 99, got %q", att.ID)
	}
	want := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	if !att.CheckIn.Equal(want) {
		t.Errorf("Expected check-in %v, got %v", want, att.CheckIn)
	}
	if att.CheckOut != nil {
		t.Error("Expected no check-out time")
	}
}

func TestClient_UserStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u-1/online-status" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"is_checked_in": true, "checked_out": false, "is_online": false,
			"last_status_change": "2024-03-04T11:30:00Z", "attendance_id": "a-5", "check_in": "2024-03-04T09:00:00Z"}`)
	})

	status, err := client.UserStatus(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("UserStatus failed: %v", err)
	}
	if !status.Open() {
		t.Error("Expected open session")
	}
	if status.IsOnline {
		t.Error("Expected offline")
	}
	if status.AttendanceID != "a-5" {
		t.Errorf("Expected attendance a-5, got %q", status.AttendanceID)
	}
	if status.LastStatusChange == nil || status.LastStatusChange.Hour() != 11 {
		t.Errorf("Unexpected last status change %v", status.LastStatusChange)
	}
}

func TestClient_WorkFromHomeApproved(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") != "2024-03-04" {
			t.Errorf("Unexpected date %q", r.URL.Query().Get("date"))
		}
		_, _ = io.WriteString(w, `{"approved": true}`)
	})

	ok, err := client.WorkFromHomeApproved(context.Background(), "u-1", time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("WorkFromHomeApproved failed: %v", err)
	}
	if !ok {
		t.Error("Expected approved")
	}
}

func TestClient_TeamStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"user_id": 1, "name": "Ana", "is_online": true}, {"user_id": "2", "name": "Ben", "is_online": false}]`)
	})

	members, err := client.TeamStatus(context.Background())
	if err != nil {
		t.Fatalf("TeamStatus failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members))
	}
	if members[0].UserID != "1" || !members[0].IsOnline {
		t.Errorf("Unexpected first member %+v", members[0])
	}
}

func TestClient_ContextTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.WorkingHours(ctx, "1"); err == nil {
		t.Error("Expected timeout error")
	}
}
