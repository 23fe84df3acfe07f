package models

// Message is a single entry in a chat's append log.
//
// ServerTime is assigned by the event store on write and is the
// authoritative ordering key. ClientTime is assigned by the sender at
// call time and only orders messages that the store has not confirmed
// yet. A message with ServerTime == 0 is optimistic: it sorts after all
// confirmed messages and is re-sorted in place once the store echo
// carrying its ServerTime arrives.
type Message struct {
	ID         string `json:"id"`
	ChatID     string `json:"chat_id"`
	ClientID   string `json:"client_id"` // sender-assigned UUID, used to reconcile the optimistic copy
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	ServerTime int64  `json:"server_time"` // ms since epoch, store-assigned; 0 while pending
	ClientTime int64  `json:"client_time"` // ms since epoch, sender clock
	Pending    bool   `json:"pending"`
}

// Confirmed reports whether the store has assigned this message its
// authoritative timestamp.
func (m *Message) Confirmed() bool {
	return m.ServerTime > 0
}

type MessageResponse struct {
	ID         string `json:"id"`
	ChatID     string `json:"chat_id"`
	ClientID   string `json:"client_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	ServerTime int64  `json:"server_time"`
	ClientTime int64  `json:"client_time"`
	Pending    bool   `json:"pending"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		ChatID:     m.ChatID,
		ClientID:   m.ClientID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		ServerTime: m.ServerTime,
		ClientTime: m.ClientTime,
		Pending:    m.Pending,
	}
}
