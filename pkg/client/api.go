package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

const defaultHTTPTimeout = 30 * time.Second

// API is the HTTP client for the backend's process, event-log and session
// endpoints.
type API struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewAPI(baseURL, authToken string, logger *slog.Logger) *API {
	return &API{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.With("module", "client.api"),
	}
}

// StartProcess creates a new generation process.
func (a *API) StartProcess(ctx context.Context, req models.StartGenerationRequest) (*models.GenerationProcess, error) {
	var proc models.GenerationProcess
	if err := a.do(ctx, http.MethodPost, "/processes", req, &proc); err != nil {
		return nil, err
	}

	return &proc, nil
}

// GetProcess fetches the authoritative snapshot of one process.
func (a *API) GetProcess(ctx context.Context, processID string) (*models.ProcessSnapshot, error) {
	var snap models.ProcessSnapshot
	if err := a.do(ctx, http.MethodGet, "/processes/"+url.PathEscape(processID), nil, &snap); err != nil {
		return nil, err
	}

	return &snap, nil
}

// GetEvents fetches the event log since the given sequence (0 for all).
func (a *API) GetEvents(ctx context.Context, processID string, sinceSequence int64) ([]models.EventRecord, error) {
	path := "/processes/" + url.PathEscape(processID) + "/events"
	if sinceSequence > 0 {
		path += "?since=" + strconv.FormatInt(sinceSequence, 10)
	}

	var records []models.EventRecord
	if err := a.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}

	return records, nil
}

// SubmitAnswers posts the user's answers to pending AI questions.
func (a *API) SubmitAnswers(ctx context.Context, processID string, answers map[string]any) error {
	path := "/processes/" + url.PathEscape(processID) + "/answers"

	return a.do(ctx, http.MethodPost, path, map[string]any{"answers": answers}, nil)
}

// CancelProcess asks the backend to cancel an in-flight process.
func (a *API) CancelProcess(ctx context.Context, processID string) error {
	path := "/processes/" + url.PathEscape(processID) + "/cancel"

	return a.do(ctx, http.MethodPost, path, nil, nil)
}

// Session lifecycle.

func (a *API) CreateSession(ctx context.Context, title string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := a.do(ctx, http.MethodPost, "/sessions", map[string]string{"title": title}, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (a *API) ActivateSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := a.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/activate", nil, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (a *API) CloseSession(ctx context.Context, sessionID string) error {
	return a.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/close", nil, nil)
}

func (a *API) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	if err := a.do(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}

	return sessions, nil
}

// GetHistory fetches the canonical conversation history of one session.
func (a *API) GetHistory(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	if err := a.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/history", nil, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// PostChatMessage sends one user message and returns the acknowledged run
// state (carrying the server-assigned run id).
func (a *API) PostChatMessage(ctx context.Context, sessionID, content string) (*models.AgentRunState, error) {
	var run models.AgentRunState

	path := "/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := a.do(ctx, http.MethodPost, path, map[string]string{"content": content}, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// GetRunState fetches the current state of one agent run.
func (a *API) GetRunState(ctx context.Context, sessionID, runID string) (*models.AgentRunState, error) {
	var run models.AgentRunState

	path := "/sessions/" + url.PathEscape(sessionID) + "/runs/" + url.PathEscape(runID)
	if err := a.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// UploadImage uploads one auxiliary image and returns its stored URL.
func (a *API) UploadImage(ctx context.Context, processID, filename string, data []byte) (string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	target := a.baseURL + "/processes/" + url.PathEscape(processID) + "/images"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	a.setAuth(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", a.apiError("UploadImage", resp)
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.URL, nil
}

// maxConcurrentUploads bounds a burst of image uploads.
const maxConcurrentUploads = 4

// UploadImages uploads a batch of images with bounded concurrency. Failures
// are per-file: the returned map holds the URL of each successful upload.
func (a *API) UploadImages(ctx context.Context, processID string, files map[string][]byte) map[string]string {
	type result struct {
		name string
		url  string
		err  error
	}

	sem := make(chan struct{}, maxConcurrentUploads)
	results := make(chan result, len(files))

	for name, data := range files {
		sem <- struct{}{}

		go func(name string, data []byte) {
			defer func() { <-sem }()

			uploadedURL, err := a.UploadImage(ctx, processID, name, data)
			results <- result{name: name, url: uploadedURL, err: err}
		}(name, data)
	}

	urls := make(map[string]string, len(files))

	for range files {
		res := <-results
		if res.err != nil {
			a.logger.WarnContext(ctx, "Image upload failed", "file", res.name, "error", res.err)

			continue
		}

		urls[res.name] = res.url
	}

	return urls
}

func (a *API) do(ctx context.Context, method, path string, payload, target any) error {
	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	a.setAuth(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return a.apiError(method+" "+path, resp)
	}

	if target == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

func (a *API) setAuth(req *http.Request) {
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}
}

func (a *API) apiError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
}
