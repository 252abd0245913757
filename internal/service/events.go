package service

import (
	"medichat/internal/api"
	"medichat/internal/domain"
)

// StreamEventKind enumera las transiciones de un stream de respuesta.
type StreamEventKind int

const (
	StreamUpdate StreamEventKind = iota + 1
	StreamComplete
	StreamError
	StreamCancelled
)

// StreamEvent es una transicion del ciclo de vida de un mensaje de asistente.
// Los eventos de un mismo MessageID llegan estrictamente ordenados y cada
// transicion terminal se entrega como mucho una vez.
type StreamEvent struct {
	Kind      StreamEventKind
	MessageID string
	// Content es el texto acumulado en updates, el texto final en complete y
	// el parcial recibido en error/cancelled.
	Content string
	Err     error
}

// PipelineEventKind enumera lo que el pipeline de adjuntos publica.
type PipelineEventKind int

const (
	PipelinePhase PipelineEventKind = iota + 1
	PipelineUploaded
	PipelineReplyStarted
	PipelineSystemNotice
)

// PipelineEvent notifica avance del pipeline sobre el mensaje de usuario que
// lo origino. Las fases llegan en orden monotono.
type PipelineEvent struct {
	Kind      PipelineEventKind
	MessageID string
	Phase     domain.Phase
	Files     []api.UploadedFile
	Reply     *domain.Message
	Notice    string
}
