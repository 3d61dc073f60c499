// internal/delivery/registry_test.go
package delivery

import (
	"testing"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotChat, gotText string
	reg.Register("telegram", func(chatID, text string) error {
		gotChat = chatID
		gotText = text
		return nil
	})

	if err := reg.Deliver("telegram", "123", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotChat != "123" {
		t.Errorf("chat id = %q, want %q", gotChat, "123")
	}
	if gotText != "hello" {
		t.Errorf("text = %q, want %q", gotText, "hello")
	}
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Deliver("signal", "123", "hello"); err == nil {
		t.Fatal("expected error for unregistered platform, got nil")
	}
}

func TestRegistryMultiplePlatforms(t *testing.T) {
	reg := NewRegistry()

	var telegramCalls, slackCalls int
	reg.Register("telegram", func(chatID, text string) error {
		telegramCalls++
		return nil
	})
	reg.Register("slack", func(chatID, text string) error {
		slackCalls++
		return nil
	})

	if err := reg.Deliver("telegram", "42", "msg1"); err != nil {
		t.Fatalf("telegram deliver error: %v", err)
	}
	if err := reg.Deliver("slack", "general", "msg2"); err != nil {
		t.Fatalf("slack deliver error: %v", err)
	}

	if telegramCalls != 1 {
		t.Errorf("expected 1 telegram call, got %d", telegramCalls)
	}
	if slackCalls != 1 {
		t.Errorf("expected 1 slack call, got %d", slackCalls)
	}
}
