package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"medichat/internal/api"
	"medichat/internal/cache"
	"medichat/internal/domain"
)

// ConversationEventKind enumera lo que publica el orquestador hacia la UI.
type ConversationEventKind int

const (
	ConversationMessageAdded ConversationEventKind = iota + 1
	ConversationMessageUpdated
)

func (k ConversationEventKind) String() string {
	switch k {
	case ConversationMessageAdded:
		return "message_added"
	case ConversationMessageUpdated:
		return "message_updated"
	default:
		return "unknown"
	}
}

// ConversationEvent lleva una copia por valor del mensaje afectado.
type ConversationEvent struct {
	Kind    ConversationEventKind
	Message domain.Message
}

// ConversationOrchestrator mantiene la lista ordenada de mensajes de una
// conversacion y coordina el pipeline de adjuntos y el controlador de
// streams. La lista es append-only; los mensajes solo mutan en sitio via los
// eventos de sus controladores propietarios.
type ConversationOrchestrator struct {
	client   api.Client
	blobs    cache.BlobStore
	streams  *StreamController
	pipeline *AttachmentPipeline
	chats    *ChatRegistry
	logger   *zap.Logger

	mu        sync.Mutex
	personaID string
	blocked   bool
	messages  []*domain.Message
	cancels   map[string]context.CancelFunc
	subs      map[int]func(ConversationEvent)
	nextSub   int
}

func NewConversationOrchestrator(
	client api.Client,
	blobs cache.BlobStore,
	streams *StreamController,
	pipeline *AttachmentPipeline,
	chats *ChatRegistry,
	logger *zap.Logger,
) *ConversationOrchestrator {
	return &ConversationOrchestrator{
		client:   client,
		blobs:    blobs,
		streams:  streams,
		pipeline: pipeline,
		chats:    chats,
		logger:   logger,
		cancels:  make(map[string]context.CancelFunc),
		subs:     make(map[int]func(ConversationEvent)),
	}
}

// SetPersona selecciona la persona destinataria de la conversacion.
func (o *ConversationOrchestrator) SetPersona(personaID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.personaID = personaID
}

// SetBlocked comunica el estado de la cuota externa de mensajes. Con la
// cuenta bloqueada, los envios no llegan a la red.
func (o *ConversationOrchestrator) SetBlocked(blocked bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blocked = blocked
}

// Subscribe registra un observador de eventos y devuelve la funcion para
// darlo de baja.
func (o *ConversationOrchestrator) Subscribe(fn func(ConversationEvent)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

// Messages devuelve una copia instantanea de la conversacion en orden de
// insercion.
func (o *ConversationOrchestrator) Messages() []domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.Message, 0, len(o.messages))
	for _, m := range o.messages {
		out = append(out, *m)
	}
	return out
}

// SendText envia un mensaje de texto plano. La ruta de solo texto no crea
// chat: el stream se pide con la persona (y el chat cacheado si existiera).
func (o *ConversationOrchestrator) SendText(ctx context.Context, text string) *domain.Message {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if guard := o.gate(); guard != nil {
		return guard
	}

	o.mu.Lock()
	personaID := o.personaID
	o.mu.Unlock()

	userMsg := domain.NewUserMessage(text, nil)
	o.append(userMsg)

	req := api.ReplyRequest{PersonaID: personaID, Text: text}
	if chatID, ok := o.chats.Lookup(personaID); ok {
		req.ChatID = chatID
	}
	o.beginStream(ctx, req)
	return userMsg
}

// SendFiles envia un lote de archivos con texto opcional via el pipeline de
// adjuntos.
func (o *ConversationOrchestrator) SendFiles(ctx context.Context, text string, files []IncomingFile) *domain.Message {
	if len(files) == 0 {
		return o.SendText(ctx, text)
	}
	if guard := o.gate(); guard != nil {
		return guard
	}

	o.mu.Lock()
	personaID := o.personaID
	o.mu.Unlock()

	pctx, cancel := context.WithCancel(ctx)

	// El pipeline arranca antes de que el mensaje entre en la lista; los
	// eventos esperan al alta para no perderse.
	ready := make(chan struct{})
	msg := o.pipeline.Submit(pctx, personaID, text, files,
		func(e PipelineEvent) {
			<-ready
			o.applyPipelineEvent(e)
		},
		func(e StreamEvent) {
			<-ready
			o.applyStreamEvent(e)
		},
	)

	o.mu.Lock()
	o.cancels[msg.ID] = cancel
	o.mu.Unlock()

	o.append(msg)
	close(ready)
	return msg
}

// SendCapturedImages envia imagenes capturadas localmente. El binario recien
// capturado se deja en la cache bajo su clave de recurso para que nadie
// vuelva a descargarlo.
func (o *ConversationOrchestrator) SendCapturedImages(ctx context.Context, images []IncomingFile) *domain.Message {
	if len(images) == 0 {
		return nil
	}
	// La puerta va antes de tocar la cache: un envio rechazado no deja rastro.
	if guard := o.gate(); guard != nil {
		return guard
	}
	for _, img := range images {
		if img.URL == "" || len(img.Data) == 0 {
			continue
		}
		if err := o.blobs.Put(ctx, img.URL, img.Data); err != nil {
			o.logger.Warn("captured image cache put failed", zap.Error(err), zap.String("key", img.URL))
		}
	}
	return o.SendFiles(ctx, "", images)
}

// LoadHistory siembra la conversacion con el historial del backend. Solo
// aplica cuando la persona ya tiene chat.
func (o *ConversationOrchestrator) LoadHistory(ctx context.Context) error {
	o.mu.Lock()
	personaID := o.personaID
	o.mu.Unlock()

	chatID, ok := o.chats.Lookup(personaID)
	if !ok {
		return nil
	}

	history, err := o.client.GetConversationHistory(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}
	for i := range history {
		o.append(&history[i])
	}
	return nil
}

// Clear cancela todo stream y pipeline en vuelo y vacia la conversacion.
func (o *ConversationOrchestrator) Clear() {
	o.mu.Lock()
	cancels := o.cancels
	o.cancels = make(map[string]context.CancelFunc)
	o.messages = nil
	o.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// gate devuelve el mensaje de sistema que reemplaza al envio cuando falta la
// persona o la cuota esta agotada; nil si el envio puede proceder.
func (o *ConversationOrchestrator) gate() *domain.Message {
	o.mu.Lock()
	personaID := o.personaID
	blocked := o.blocked
	o.mu.Unlock()

	if personaID == "" {
		o.logger.Warn("send rejected", zap.Error(domain.ErrNoPersona))
		sys := domain.NewSystemMessage("Select a doctor before starting the consultation.")
		o.append(sys)
		return sys
	}
	if blocked {
		o.logger.Warn("send rejected", zap.Error(domain.ErrBlocked))
		sys := domain.NewSystemMessage("You have used all your available messages. Upgrade your plan to continue the consultation.")
		o.append(sys)
		return sys
	}
	return nil
}

func (o *ConversationOrchestrator) beginStream(ctx context.Context, req api.ReplyRequest) {
	sctx, cancel := context.WithCancel(ctx)

	// Un fallo sincrono del cliente puede emitir el evento terminal antes de
	// que el placeholder entre en la lista; los eventos esperan al alta.
	ready := make(chan struct{})
	msg := o.streams.Begin(sctx, req, func(e StreamEvent) {
		<-ready
		o.applyStreamEvent(e)
	})

	o.mu.Lock()
	o.cancels[msg.ID] = cancel
	o.mu.Unlock()

	o.append(msg)
	close(ready)
}

func (o *ConversationOrchestrator) append(msg *domain.Message) {
	o.mu.Lock()
	o.messages = append(o.messages, msg)
	copied := *msg
	subs := o.snapshotSubs()
	o.mu.Unlock()

	o.publish(subs, ConversationEvent{Kind: ConversationMessageAdded, Message: copied})
}

func (o *ConversationOrchestrator) applyStreamEvent(e StreamEvent) {
	o.mu.Lock()
	msg := o.find(e.MessageID)
	if msg == nil {
		o.mu.Unlock()
		return
	}

	switch e.Kind {
	case StreamUpdate:
		msg.Content = e.Content
	case StreamComplete:
		msg.Content = e.Content
		msg.Streaming = false
		delete(o.cancels, msg.ID)
	case StreamError:
		msg.Streaming = false
		msg.Content = fmt.Sprintf("The reply could not be completed: %v. Please try again.", e.Err)
		delete(o.cancels, msg.ID)
	case StreamCancelled:
		// El contenido parcial se conserva tal cual.
		msg.Streaming = false
		delete(o.cancels, msg.ID)
	}

	copied := *msg
	subs := o.snapshotSubs()
	o.mu.Unlock()

	o.publish(subs, ConversationEvent{Kind: ConversationMessageUpdated, Message: copied})
}

func (o *ConversationOrchestrator) applyPipelineEvent(e PipelineEvent) {
	switch e.Kind {
	case PipelineSystemNotice:
		o.append(domain.NewSystemMessage(e.Notice))
		return
	case PipelineReplyStarted:
		o.append(e.Reply)
		return
	}

	o.mu.Lock()
	msg := o.find(e.MessageID)
	if msg == nil {
		o.mu.Unlock()
		return
	}

	switch e.Kind {
	case PipelinePhase:
		// Las fases nunca retroceden.
		if msg.Processing != nil && e.Phase < msg.Processing.Phase {
			o.mu.Unlock()
			return
		}
		msg.Processing = &domain.ProcessingStatus{
			InProgress: !e.Phase.Terminal(),
			Phase:      e.Phase,
			StatusText: e.Phase.StatusText(),
		}
	case PipelineUploaded:
		for i := range msg.Attachments {
			for _, f := range e.Files {
				if f.Name == msg.Attachments[i].Name && msg.Attachments[i].FileID == 0 {
					msg.Attachments[i].FileID = f.ID
				}
			}
		}
	}

	copied := *msg
	subs := o.snapshotSubs()
	o.mu.Unlock()

	o.publish(subs, ConversationEvent{Kind: ConversationMessageUpdated, Message: copied})
}

// find asume o.mu tomado.
func (o *ConversationOrchestrator) find(messageID string) *domain.Message {
	for _, m := range o.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

// snapshotSubs asume o.mu tomado.
func (o *ConversationOrchestrator) snapshotSubs() []func(ConversationEvent) {
	out := make([]func(ConversationEvent), 0, len(o.subs))
	for _, fn := range o.subs {
		out = append(out, fn)
	}
	return out
}

func (o *ConversationOrchestrator) publish(subs []func(ConversationEvent), e ConversationEvent) {
	for _, fn := range subs {
		fn(e)
	}
}
