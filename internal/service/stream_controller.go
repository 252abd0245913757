package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"medichat/internal/api"
	"medichat/internal/domain"
	"medichat/internal/stream"
)

// StreamController posee el ciclo de vida de un mensaje de asistente: crea el
// placeholder, consume el stream de red y publica los eventos ordenados.
type StreamController struct {
	client  api.Client
	decoder *stream.Decoder
	logger  *zap.Logger
}

func NewStreamController(client api.Client, decoder *stream.Decoder, logger *zap.Logger) *StreamController {
	return &StreamController{
		client:  client,
		decoder: decoder,
		logger:  logger,
	}
}

// Begin crea el placeholder del asistente y lo devuelve de forma sincrona
// para que el llamador lo inserte en la conversacion de inmediato; el I/O de
// red arranca en segundo plano. Exactamente una peticion por llamada, sin
// reintentos internos: reintentar es responsabilidad del llamador con un
// Begin nuevo.
func (c *StreamController) Begin(ctx context.Context, req api.ReplyRequest, emit func(StreamEvent)) *domain.Message {
	msg := domain.NewAssistantPlaceholder()
	go c.run(ctx, msg.ID, req, emit)
	return msg
}

func (c *StreamController) run(ctx context.Context, messageID string, req api.ReplyRequest, emit func(StreamEvent)) {
	body, err := c.client.StreamReply(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			emit(StreamEvent{Kind: StreamCancelled, MessageID: messageID})
			return
		}
		c.logger.Error("reply stream failed to open", zap.Error(err), zap.String("message_id", messageID))
		emit(StreamEvent{Kind: StreamError, MessageID: messageID, Err: err})
		return
	}
	defer body.Close()

	var acc strings.Builder
	total, err := c.decoder.Decode(ctx, body, func(delta string) {
		acc.WriteString(delta)
		emit(StreamEvent{Kind: StreamUpdate, MessageID: messageID, Content: acc.String()})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			emit(StreamEvent{Kind: StreamCancelled, MessageID: messageID, Content: total})
			return
		}
		c.logger.Warn("reply stream interrupted", zap.Error(err), zap.String("message_id", messageID), zap.Int("partial_len", len(total)))
		emit(StreamEvent{Kind: StreamError, MessageID: messageID, Content: total, Err: err})
		return
	}

	emit(StreamEvent{Kind: StreamComplete, MessageID: messageID, Content: total})
}
