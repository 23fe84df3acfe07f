package service

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/repository"
	"gorm.io/gorm"
)

// ChatService owns the chat roster: which chats exist, who participates,
// and what the peer's display name is. Message content never passes
// through here; it lives in the event store.
type ChatService struct {
	chatRepo repository.ChatRepositoryInterface
}

func NewChatService(chatRepo repository.ChatRepositoryInterface) *ChatService {
	return &ChatService{chatRepo: chatRepo}
}

// DirectChatID derives the deterministic id for a one-to-one chat, so
// both sides arrive at the same chat without coordination.
func DirectChatID(userID1, userID2 string) string {
	ids := []string{userID1, userID2}
	sort.Strings(ids)
	return strings.Join(ids, "--")
}

// EnsureDirectChat returns the direct chat between two users, creating
// it on first contact. Display names are refreshed on every call.
func (s *ChatService) EnsureDirectChat(userID, userName, peerID, peerName string) (*models.Chat, error) {
	if peerID == "" || peerID == userID {
		return nil, errors.New("invalid peer")
	}

	chatID := DirectChatID(userID, peerID)
	chat, err := s.chatRepo.FindByID(chatID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		chat = &models.Chat{
			ID: chatID,
			Participants: []models.ChatParticipant{
				{ChatID: chatID, UserID: userID, DisplayName: userName, JoinedAt: time.Now()},
				{ChatID: chatID, UserID: peerID, DisplayName: peerName, JoinedAt: time.Now()},
			},
		}
		if err := s.chatRepo.Create(chat); err != nil {
			return nil, err
		}
		return chat, nil
	}

	if err := s.chatRepo.AddParticipant(chatID, userID, userName); err != nil {
		return nil, err
	}
	if peerName != "" {
		if err := s.chatRepo.AddParticipant(chatID, peerID, peerName); err != nil {
			return nil, err
		}
	}
	return s.chatRepo.FindByID(chatID)
}

// GetChat loads a chat with its participants.
func (s *ChatService) GetChat(chatID string) (*models.Chat, error) {
	return s.chatRepo.FindByID(chatID)
}

// ListUserChats returns every chat the user participates in.
func (s *ChatService) ListUserChats(userID string) ([]models.Chat, error) {
	return s.chatRepo.FindForUser(userID)
}

// CanAccess reports whether the user participates in the chat.
func (s *ChatService) CanAccess(chatID, userID string) (bool, error) {
	return s.chatRepo.IsParticipant(chatID, userID)
}

// PeerName returns the display name the chat row should carry for the
// given viewer: the other participant's name in a direct chat.
func (s *ChatService) PeerName(chat *models.Chat, userID string) string {
	for _, p := range chat.Participants {
		if p.UserID != userID {
			return p.DisplayName
		}
	}
	return chat.ID
}

// ParticipantIDs returns the user ids in the chat.
func (s *ChatService) ParticipantIDs(chat *models.Chat) []string {
	ids := make([]string, 0, len(chat.Participants))
	for _, p := range chat.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}
