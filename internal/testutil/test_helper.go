package testutil

import (
	"os"
	"testing"

	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
)

// TestHelper provides utility functions for tests
type TestHelper struct {
	t *testing.T
}

func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// CreateTestMetadata creates a chat summary record with default values
func (h *TestHelper) CreateTestMetadata(chatID, senderID string, updatedAt int64) *models.ChatMetadata {
	if chatID == "" {
		chatID = "alice--bob"
	}
	if senderID == "" {
		senderID = "alice"
	}
	return &models.ChatMetadata{
		ChatID:                chatID,
		LastMessage:           "Is the salad still available?",
		LastMessageSender:     senderID,
		LastMessageSenderName: "Alice",
		UpdatedAt:             updatedAt,
		LastMessageTime:       updatedAt,
	}
}

// CreateTestWatermark creates a read watermark with default values
func (h *TestHelper) CreateTestWatermark(chatID, userID string, lastReadTime int64) *models.ReadWatermark {
	if chatID == "" {
		chatID = "alice--bob"
	}
	if userID == "" {
		userID = "bob"
	}
	return &models.ReadWatermark{
		ChatID:       chatID,
		UserID:       userID,
		LastReadTime: lastReadTime,
		ClientTime:   lastReadTime,
	}
}

// CreateTestMessage creates a test message with default values
func (h *TestHelper) CreateTestMessage(id, senderID, text string, serverTime int64) models.Message {
	if senderID == "" {
		senderID = "alice"
	}
	if text == "" {
		text = "Test message"
	}
	return models.Message{
		ID:         id,
		ChatID:     "alice--bob",
		ClientID:   "client-" + id,
		SenderID:   senderID,
		SenderName: "Alice",
		Text:       text,
		ServerTime: serverTime,
		ClientTime: serverTime,
	}
}

// SetupTestEnv sets up required environment variables for testing
func (h *TestHelper) SetupTestEnv() {
	os.Setenv("JWT_SECRET", "test-secret-key-for-testing-only")
	os.Setenv("MAX_MESSAGE_LENGTH", "4000")
}

// TeardownTestEnv cleans up environment variables after testing
func (h *TestHelper) TeardownTestEnv() {
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("MAX_MESSAGE_LENGTH")
}

// AssertError checks if an error occurred when it should (or shouldn't)
func (h *TestHelper) AssertError(err error, shouldErr bool, testName string) {
	if (err != nil) != shouldErr {
		if shouldErr {
			h.t.Errorf("%s: expected error but got nil", testName)
		} else {
			h.t.Errorf("%s: unexpected error: %v", testName, err)
		}
	}
}

// AssertEqual checks if two values are equal
func (h *TestHelper) AssertEqual(got, want interface{}, testName string) {
	if got != want {
		h.t.Errorf("%s: got %v, want %v", testName, got, want)
	}
}
