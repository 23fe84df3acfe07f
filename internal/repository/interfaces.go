package repository

import (
	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
)

// ChatRepositoryInterface defines the contract for chat roster operations
type ChatRepositoryInterface interface {
	Create(chat *models.Chat) error
	FindByID(id string) (*models.Chat, error)
	FindForUser(userID string) ([]models.Chat, error)
	AddParticipant(chatID, userID, displayName string) error
	IsParticipant(chatID, userID string) (bool, error)
	GetParticipants(chatID string) ([]models.ChatParticipant, error)
}
