package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// ErrNoDevice is returned when a device relay is requested but no ESP32
// address is configured.
var ErrNoDevice = errors.New("no ESP32 address configured")

// notifyTimeout bounds a detached device call so an abandoned speaker cannot
// hold a connection forever.
const notifyTimeout = 10 * time.Second

// NotifyService covers the side channels: relaying replies to the ESP32
// speaker and proxying text through the Deepgram TTS API.
type NotifyService interface {
	// NotifyDevice relays text to the speaker and waits for the outcome.
	NotifyDevice(ctx context.Context, text string) error
	// NotifyDeviceAsync fires the relay in the background and reports whether
	// one was launched. The caller never waits on the result.
	NotifyDeviceAsync(text string) bool
	DeviceConfigured() bool
	// Synthesize converts text to WAV audio via Deepgram.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type notifyServiceImpl struct {
	httpClient  *http.Client
	deviceAddr  string
	deepgramURL string
	deepgramKey string
	ttsModel    string
}

func NewNotifyService(client *http.Client, deviceAddr, deepgramURL, deepgramKey, ttsModel string) NotifyService {
	return &notifyServiceImpl{
		httpClient:  client,
		deviceAddr:  deviceAddr,
		deepgramURL: deepgramURL,
		deepgramKey: deepgramKey,
		ttsModel:    ttsModel,
	}
}

func (s *notifyServiceImpl) DeviceConfigured() bool {
	return s.deviceAddr != ""
}

// NotifyDevice asks the ESP32 to speak the text. The device exposes a bare
// GET /say?text= endpoint with no response contract, so any 2xx-or-otherwise
// response counts as delivered.
func (s *notifyServiceImpl) NotifyDevice(ctx context.Context, text string) error {
	if s.deviceAddr == "" {
		return ErrNoDevice
	}

	sayURL := fmt.Sprintf("http://%s/say?text=%s", s.deviceAddr, url.QueryEscape(text))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sayURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create device request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach ESP32: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// NotifyDeviceAsync detaches the device call from the caller entirely: its
// context is not derived from any request, its outcome is logged and dropped.
// With no device configured this is a no-op and no network call is attempted.
func (s *notifyServiceImpl) NotifyDeviceAsync(text string) bool {
	if s.deviceAddr == "" {
		return false
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.NotifyDevice(ctx, text); err != nil {
			log.Printf("SERVICE: ESP32 notify failed: %v", err)
		}
	}()
	return true
}

// Synthesize calls Deepgram's speak endpoint and returns the WAV bytes.
func (s *notifyServiceImpl) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	speakURL := s.deepgramURL + "?model=" + url.QueryEscape(s.ttsModel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, speakURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.deepgramKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Deepgram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("deepgram returned status %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Deepgram audio: %w", err)
	}
	return audio, nil
}
