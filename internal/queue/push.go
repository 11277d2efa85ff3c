package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PushMessage is one message in the Expo push API format.
type PushMessage struct {
	To       string            `json:"to"`
	Sound    string            `json:"sound,omitempty"`
	Title    string            `json:"title,omitempty"`
	Subtitle string            `json:"subtitle,omitempty"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
}

// PushSender delivers push messages.
type PushSender interface {
	Send(ctx context.Context, msgs []PushMessage) error
}

// expoChunkSize is the gateway's per-request message limit.
const expoChunkSize = 100

// ExpoSender posts messages to the Expo push gateway.
type ExpoSender struct {
	url    string
	client *http.Client
}

// NewExpoSender builds a sender for the gateway at url.
func NewExpoSender(url string, timeout time.Duration) *ExpoSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExpoSender{url: url, client: &http.Client{Timeout: timeout}}
}

// Send posts msgs in chunks and stops at the first failed chunk.
func (s *ExpoSender) Send(ctx context.Context, msgs []PushMessage) error {
	for start := 0; start < len(msgs); start += expoChunkSize {
		end := start + expoChunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		if err := s.post(ctx, msgs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExpoSender) post(ctx context.Context, chunk []PushMessage) error {
	body, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// IsExpoPushToken reports whether token has the shape of an Expo push
// token, ExponentPushToken[...] or ExpoPushToken[...].
func IsExpoPushToken(token string) bool {
	for _, prefix := range []string{"ExponentPushToken[", "ExpoPushToken["} {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") && len(token) > len(prefix)+1 {
			return true
		}
	}
	return false
}

// Messages expands an event into one push message per valid recipient.
func Messages(ev NotificationEvent) []PushMessage {
	out := make([]PushMessage, 0, len(ev.Recipients))
	for _, to := range ev.Recipients {
		if !IsExpoPushToken(to) {
			continue
		}
		out = append(out, PushMessage{
			To:       to,
			Sound:    "default",
			Title:    ev.Title,
			Subtitle: ev.Subtitle,
			Body:     ev.Body,
			Data:     ev.Data,
		})
	}
	return out
}
