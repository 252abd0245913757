package http

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medichat/internal/service"
)

// ChatHandler expone la conversacion con el doctor sobre HTTP.
type ChatHandler struct {
	logger *zap.Logger
	conv   *service.ConversationOrchestrator
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, conv *service.ConversationOrchestrator) *ChatHandler {
	return &ChatHandler{logger: logger, conv: conv}
}

// SelectPersona maneja POST /chat/persona.
func (h *ChatHandler) SelectPersona(c *gin.Context) {
	var req struct {
		PersonaID string `json:"persona_id" binding:"required"`
		Blocked   bool   `json:"blocked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid persona request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	h.conv.SetPersona(req.PersonaID)
	h.conv.SetBlocked(req.Blocked)
	c.JSON(http.StatusOK, gin.H{"persona_id": req.PersonaID})
}

// SendText maneja POST /chat/text.
func (h *ChatHandler) SendText(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid text request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	// El stream sobrevive al request; la cancelacion explicita llega por
	// DELETE /chat.
	msg := h.conv.SendText(context.WithoutCancel(c.Request.Context()), req.Text)
	if msg == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// SendFiles maneja POST /chat/files. Espera un formulario multipart con las
// partes bajo "files" y un campo "text" opcional.
func (h *ChatHandler) SendFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.logger.Warn("invalid files request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	files, err := readMultipartFiles(form.File["files"])
	if err != nil {
		h.logger.Warn("reading multipart files failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read files"})
		return
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	text := c.PostForm("text")
	msg := h.conv.SendFiles(context.WithoutCancel(c.Request.Context()), text, files)
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// SendCaptures maneja POST /chat/captures. Cada parte bajo "files" va
// acompanada, en el mismo orden, de su clave de recurso en el campo "keys".
func (h *ChatHandler) SendCaptures(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.logger.Warn("invalid captures request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	images, err := readMultipartFiles(form.File["files"])
	if err != nil {
		h.logger.Warn("reading captured images failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read files"})
		return
	}
	keys := form.Value["keys"]
	if len(images) == 0 || len(keys) != len(images) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "files and keys must match"})
		return
	}
	for i := range images {
		images[i].URL = keys[i]
	}

	msg := h.conv.SendCapturedImages(context.WithoutCancel(c.Request.Context()), images)
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// ListMessages maneja GET /chat/messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.conv.Messages()})
}

// LoadHistory maneja GET /chat/history.
func (h *ChatHandler) LoadHistory(c *gin.Context) {
	if err := h.conv.LoadHistory(c.Request.Context()); err != nil {
		h.logger.Error("load history failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": h.conv.Messages()})
}

// StreamEvents maneja GET /chat/events como un stream SSE de eventos de
// conversacion.
func (h *ChatHandler) StreamEvents(c *gin.Context) {
	events := make(chan service.ConversationEvent, 64)
	unsubscribe := h.conv.Subscribe(func(e service.ConversationEvent) {
		select {
		case events <- e:
		default:
			// Un consumidor lento pierde eventos intermedios; el estado
			// completo sigue disponible en /chat/messages.
		}
	})
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case e := <-events:
			c.SSEvent(e.Kind.String(), e.Message)
			return true
		case <-clientGone:
			return false
		}
	})
}

// ClearConversation maneja DELETE /chat.
func (h *ChatHandler) ClearConversation(c *gin.Context) {
	h.conv.Clear()
	c.Status(http.StatusNoContent)
}

func readMultipartFiles(parts []*multipart.FileHeader) ([]service.IncomingFile, error) {
	files := make([]service.IncomingFile, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, service.IncomingFile{
			Name:     part.Filename,
			MimeType: part.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return files, nil
}
