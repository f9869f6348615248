package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestSendPostsMessage(t *testing.T) {
	var gotURL string
	var body map[string]any
	n := NewTelegram("tok", "chat-1")
	n.HTTP = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		_ = json.NewDecoder(req.Body).Decode(&body)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"ok":true}`))}, nil
	})}

	if err := n.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotURL != "https://api.telegram.org/bottok/sendMessage" {
		t.Fatalf("url = %s", gotURL)
	}
	if body["chat_id"] != "chat-1" || body["text"] != "hello" {
		t.Fatalf("body = %v", body)
	}
}

func TestSendErrors(t *testing.T) {
	n := NewTelegram("", "")
	if n.Enabled() {
		t.Fatal("should be disabled without token")
	}
	if err := n.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected not configured error")
	}

	n.Update("tok", "chat")
	n.HTTP = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader(`{"ok":false}`))}, nil
	})}
	err := n.Send(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
