package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/worktimer/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds every backend request.
	DefaultTimeout = 10 * time.Second

	requestIDHeader = "X-Request-ID"
)

// ErrStatusRejected is returned when the backend answers a status change with success=false.
var ErrStatusRejected = errors.New("api: status change rejected")

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Config holds backend client settings.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the attendance backend over JSON/HTTP with bearer authentication.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    httpClient,
		logger:  logger.With().Str("component", "backend-client").Logger(),
	}, nil
}

// CheckIn creates the attendance record for today.
func (c *Client) CheckIn(ctx context.Context, req CheckInRequest) (*Attendance, error) {
	fields := map[string]string{
		"user_id":       req.UserID,
		"latitude":      formatFloat(req.Location.Latitude),
		"longitude":     formatFloat(req.Location.Longitude),
		"work_location": string(req.WorkLocation),
	}
	body, contentType, err := multipartBody(fields, req.Selfie, req.SelfieName)
	if err != nil {
		return nil, err
	}

	var att Attendance
	if err := c.do(ctx, "check_in", http.MethodPost, "/attendance/check-in", body, contentType, &att); err != nil {
		return nil, err
	}
	return &att, nil
}

// CheckOut closes the attendance record.
func (c *Client) CheckOut(ctx context.Context, req CheckOutRequest) (*Attendance, error) {
	fields := map[string]string{
		"attendance_id": req.AttendanceID,
		"user_id":       req.UserID,
		"latitude":      formatFloat(req.Location.Latitude),
		"longitude":     formatFloat(req.Location.Longitude),
		"work_summary":  req.WorkSummary,
	}
	body, contentType, err := multipartBody(fields, req.Selfie, req.SelfieName)
	if err != nil {
		return nil, err
	}

	var att Attendance
	if err := c.do(ctx, "check_out", http.MethodPost, "/attendance/check-out", body, contentType, &att); err != nil {
		return nil, err
	}
	return &att, nil
}

// ChangeStatus records an online/offline toggle on the backend.
func (c *Client) ChangeStatus(ctx context.Context, change StatusChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to encode status change: %w", err)
	}

	var resp statusChangeResponse
	if err := c.do(ctx, "status_change", http.MethodPost, "/attendance/status", bytes.NewReader(payload), "application/json", &resp); err != nil {
		return err
	}
	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("%w: %s", ErrStatusRejected, resp.Message)
		}
		return ErrStatusRejected
	}
	return nil
}

// WorkingHours returns the backend totals for an attendance record.
func (c *Client) WorkingHours(ctx context.Context, attendanceID string) (WorkingHours, error) {
	var resp workingHoursResponse
	path := "/attendance/" + url.PathEscape(attendanceID) + "/working-hours"
	if err := c.do(ctx, "working_hours", http.MethodGet, path, nil, "", &resp); err != nil {
		return WorkingHours{}, err
	}
	return resp.normalize(), nil
}

// UserStatus returns the check-in and online status of a user.
func (c *Client) UserStatus(ctx context.Context, userID string) (*UserStatus, error) {
	var status UserStatus
	path := "/users/" + url.PathEscape(userID) + "/online-status"
	if err := c.do(ctx, "user_status", http.MethodGet, path, nil, "", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WorkFromHomeApproved reports whether the user has an approved WFH request for date.
func (c *Client) WorkFromHomeApproved(ctx context.Context, userID string, date time.Time) (bool, error) {
	var resp wfhStatusResponse
	path := "/users/" + url.PathEscape(userID) + "/wfh-status?date=" + date.Format("2006-01-02")
	if err := c.do(ctx, "wfh_status", http.MethodGet, path, nil, "", &resp); err != nil {
		return false, err
	}
	return resp.Approved, nil
}

// TeamStatus lists the online status of every user visible to the caller.
func (c *Client) TeamStatus(ctx context.Context) ([]TeamMember, error) {
	var members []TeamMember
	if err := c.do(ctx, "team_status", http.MethodGet, "/attendance/online-status", nil, "", &members); err != nil {
		return nil, err
	}
	return members, nil
}

// do performs a request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, endpoint, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.BackendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Backend request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return &StatusError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	metrics.BackendRequestsTotal.WithLabelValues(endpoint, "success").Inc()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Error != "" {
			return er.Error
		}
	}
	return strings.TrimSpace(string(data))
}

func multipartBody(fields map[string]string, file io.Reader, fileName string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	if file != nil {
		if fileName == "" {
			fileName = "selfie.jpg"
		}
		part, err := w.CreateFormFile("selfie", fileName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create selfie part: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", fmt.Errorf("failed to write selfie: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
