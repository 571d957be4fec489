package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/sjcsvns/school-chatbot/models"
)

// UpstreamShapeError means the completion API answered but without a usable
// choice. The raw payload rides along for the error response's details field.
type UpstreamShapeError struct {
	Payload []byte
}

func (e *UpstreamShapeError) Error() string {
	return "completion API returned no usable choice"
}

// Details returns the payload in a form safe to embed in a JSON response.
func (e *UpstreamShapeError) Details() interface{} {
	if json.Valid(e.Payload) {
		return json.RawMessage(e.Payload)
	}
	return string(e.Payload)
}

// CompletionService sends a composed prompt to the upstream completion API and
// extracts the reply. One request, no retries, no streaming.
type CompletionService interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

type completionServiceImpl struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	maxTokens  int
}

func NewCompletionService(client *http.Client, url, apiKey, model string, maxTokens int) CompletionService {
	return &completionServiceImpl{
		httpClient: client,
		url:        url,
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
	}
}

// Complete issues the chat completion call and returns choices[0]'s content.
// Transport failures come back as wrapped errors; a response without a valid
// first choice comes back as *UpstreamShapeError. Error payloads from the
// upstream (auth failures, quota) have no choices and land in the shape error
// with the body intact for diagnostics.
func (s *completionServiceImpl) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	reqBody, err := json.Marshal(models.CompletionRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call completion API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	var parsed models.CompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		log.Printf("SERVICE: Completion API returned non-JSON body (status %d)", resp.StatusCode)
		return "", &UpstreamShapeError{Payload: body}
	}
	if len(parsed.Choices) == 0 {
		log.Printf("SERVICE: Completion API returned no choices (status %d)", resp.StatusCode)
		return "", &UpstreamShapeError{Payload: body}
	}

	return parsed.Choices[0].Message.Content, nil
}
