package repository

import (
	"time"

	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"gorm.io/gorm"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(chat *models.Chat) error {
	return r.db.Create(chat).Error
}

func (r *ChatRepository) FindByID(id string) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.Preload("Participants").First(&chat, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *ChatRepository) FindForUser(userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.Joins("JOIN chat_participants ON chat_participants.chat_id = chats.id").
		Where("chat_participants.user_id = ?", userID).
		Preload("Participants").
		Find(&chats).Error
	return chats, err
}

func (r *ChatRepository) AddParticipant(chatID, userID, displayName string) error {
	return r.db.Exec(`
		INSERT INTO chat_participants (chat_id, user_id, display_name, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET display_name = EXCLUDED.display_name
	`, chatID, userID, displayName, time.Now()).Error
}

func (r *ChatRepository) IsParticipant(chatID, userID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *ChatRepository) GetParticipants(chatID string) ([]models.ChatParticipant, error) {
	var participants []models.ChatParticipant
	err := r.db.Where("chat_id = ?", chatID).Find(&participants).Error
	return participants, err
}
