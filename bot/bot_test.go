package bot

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestAuthorized(t *testing.T) {
	tests := []struct {
		name   string
		admin  int64
		chatID int64
		want   bool
	}{
		{"admin chat", 4242, 4242, true},
		{"other chat", 4242, 987654, false},
		{"no admin configured", 0, 987654, false},
		{"zero chat without admin", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Bot{adminChatID: tt.admin}
			if got := b.authorized(tt.chatID); got != tt.want {
				t.Errorf("authorized(%d) with admin %d = %v, want %v", tt.chatID, tt.admin, got, tt.want)
			}
		})
	}
}

func TestCallbackChat(t *testing.T) {
	if _, ok := callbackChat(&tgbotapi.CallbackQuery{ID: "inline", Data: callbackClear}); ok {
		t.Errorf("inline callback without a message must have no chat")
	}
	cb := &tgbotapi.CallbackQuery{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 4242}}}
	if chatID, ok := callbackChat(cb); !ok || chatID != 4242 {
		t.Errorf("callbackChat = %d, %v", chatID, ok)
	}
}
