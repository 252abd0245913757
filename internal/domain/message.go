package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifica al autor de un mensaje dentro de la conversacion.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message representa un mensaje de la conversacion. El ID es estable durante
// toda la vida del mensaje; solo Content, Streaming y Processing mutan, y
// siempre a traves del controlador que posee el mensaje.
type Message struct {
	ID          string            `json:"id"`
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	CreatedAt   time.Time         `json:"created_at"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Streaming   bool              `json:"streaming,omitempty"`
	Processing  *ProcessingStatus `json:"processing,omitempty"`
}

// ProcessingStatus describe el avance del pipeline de adjuntos sobre el
// mensaje de usuario que lo origino.
type ProcessingStatus struct {
	InProgress bool   `json:"in_progress"`
	Phase      Phase  `json:"phase"`
	StatusText string `json:"status_text,omitempty"`
}

// NewUserMessage crea un mensaje de usuario con adjuntos opcionales.
func NewUserMessage(text string, attachments []Attachment) *Message {
	msg := &Message{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		Content:     text,
		CreatedAt:   time.Now().UTC(),
		Attachments: attachments,
	}
	if len(attachments) > 0 {
		msg.Processing = &ProcessingStatus{InProgress: true}
	}
	return msg
}

// NewAssistantPlaceholder crea el mensaje vacio que recibira los deltas del stream.
func NewAssistantPlaceholder() *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now().UTC(),
		Streaming: true,
	}
}

// NewSystemMessage crea un mensaje de sistema visible para el usuario.
func NewSystemMessage(text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleSystem,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}
}

func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}
