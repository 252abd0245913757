package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"medichat/internal/api"
	"medichat/internal/cache"
	"medichat/internal/domain"
)

// IncomingFile es un archivo aportado por el usuario antes de materializarse
// como Attachment. URL es la clave de recurso cuando el binario ya esta
// alojado (por ejemplo una captura de camara recien subida al CDN).
type IncomingFile struct {
	Name     string
	MimeType string
	Data     []byte
	URL      string
}

// AttachmentPipeline orquesta, por lote de archivos: resolucion de chat,
// analisis de contenido, subida y peticion de respuesta. Solo un pipeline en
// vuelo por persona; un segundo envio espera a que el primero termine.
type AttachmentPipeline struct {
	client  api.Client
	blobs   cache.BlobStore
	streams *StreamController
	chats   *ChatRegistry
	locks   keyedMutex
	logger  *zap.Logger
}

func NewAttachmentPipeline(
	client api.Client,
	blobs cache.BlobStore,
	streams *StreamController,
	chats *ChatRegistry,
	logger *zap.Logger,
) *AttachmentPipeline {
	return &AttachmentPipeline{
		client:  client,
		blobs:   blobs,
		streams: streams,
		chats:   chats,
		logger:  logger,
	}
}

// Submit devuelve de forma sincrona el mensaje de usuario con sus adjuntos
// materializados y el pipeline en progreso; los pasos corren en segundo
// plano. onEvent recibe las fases en orden monotono; onStream recibe los
// eventos del mensaje de respuesta que el pipeline delega al final.
func (p *AttachmentPipeline) Submit(
	ctx context.Context,
	personaID, text string,
	files []IncomingFile,
	onEvent func(PipelineEvent),
	onStream func(StreamEvent),
) *domain.Message {
	attachments := make([]domain.Attachment, 0, len(files))
	for _, f := range files {
		attachments = append(attachments, domain.Attachment{
			Name:     f.Name,
			Size:     int64(len(f.Data)),
			MimeType: f.MimeType,
			URL:      f.URL,
			Data:     f.Data,
		})
	}

	msg := domain.NewUserMessage(text, attachments)
	go p.run(ctx, msg.ID, personaID, text, files, onEvent, onStream)
	return msg
}

func (p *AttachmentPipeline) run(
	ctx context.Context,
	messageID, personaID, text string,
	files []IncomingFile,
	onEvent func(PipelineEvent),
	onStream func(StreamEvent),
) {
	p.locks.Lock(personaID)
	defer p.locks.Unlock(personaID)

	phase := func(ph domain.Phase) {
		onEvent(PipelineEvent{Kind: PipelinePhase, MessageID: messageID, Phase: ph})
	}

	phase(domain.PhaseResolving)

	chatID, err := p.resolveChat(ctx, personaID)
	if err != nil {
		p.logger.Error("chat resolution failed", zap.Error(err), zap.String("persona_id", personaID))
		onEvent(PipelineEvent{
			Kind:      PipelineSystemNotice,
			MessageID: messageID,
			Notice:    "The consultation could not be started. Please try again.",
		})
		phase(domain.PhaseDegraded)
		return
	}

	uploads := p.materialize(ctx, files)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	class := Classify(names)

	phase(domain.PhaseAnalyzing)
	if _, err := p.client.AnalyzeFiles(ctx, uploads); err != nil {
		// Best-effort: el analisis no bloquea la subida.
		p.logger.Warn("content analysis failed", zap.Error(err), zap.Int64("chat_id", chatID))
	}

	phase(domain.PhaseUploading)
	uploaded, err := p.client.UploadFiles(ctx, chatID, uploads, string(class))
	if err != nil {
		// Un unico reintento, con la misma clasificacion del primer intento.
		p.logger.Warn("upload failed, retrying once", zap.Error(err), zap.Int64("chat_id", chatID))
		uploaded, err = p.client.UploadFiles(ctx, chatID, uploads, string(class))
	}

	degraded := err != nil
	var fileIDs []int64
	if degraded {
		p.logger.Error("upload failed after retry, continuing without references", zap.Error(err), zap.Int64("chat_id", chatID))
	} else {
		onEvent(PipelineEvent{Kind: PipelineUploaded, MessageID: messageID, Files: uploaded})
		for _, f := range uploaded {
			fileIDs = append(fileIDs, f.ID)
		}
	}

	if degraded {
		phase(domain.PhaseDegraded)
	} else {
		phase(domain.PhaseRequesting)
	}

	prompt := Instruction(class, names)
	if t := strings.TrimSpace(text); t != "" {
		prompt = t + "\n\n" + prompt
	}

	// Los eventos del stream delegado esperan a que el mensaje de respuesta
	// este publicado; un fallo sincrono no puede adelantarse al alta.
	replyReady := make(chan struct{})
	reply := p.streams.Begin(ctx, api.ReplyRequest{
		ChatID:    chatID,
		PersonaID: personaID,
		Text:      prompt,
		FileIDs:   fileIDs,
	}, func(e StreamEvent) {
		<-replyReady
		onStream(e)
	})
	onEvent(PipelineEvent{Kind: PipelineReplyStarted, MessageID: messageID, Reply: reply})
	close(replyReady)

	if !degraded {
		phase(domain.PhaseDone)
	}
}

func (p *AttachmentPipeline) resolveChat(ctx context.Context, personaID string) (int64, error) {
	if chatID, ok := p.chats.Lookup(personaID); ok {
		return chatID, nil
	}
	chatID, err := p.client.CreateChat(ctx, personaID)
	if err != nil {
		return 0, err
	}
	p.chats.Store(personaID, chatID)
	return chatID, nil
}

// materialize completa los binarios faltantes desde la cache local y, en su
// defecto, desde la red, poblando la cache tras cualquier descarga exitosa.
func (p *AttachmentPipeline) materialize(ctx context.Context, files []IncomingFile) []api.FileUpload {
	uploads := make([]api.FileUpload, 0, len(files))
	for _, f := range files {
		data := f.Data
		if len(data) == 0 && f.URL != "" {
			cached, ok, err := p.blobs.Get(ctx, f.URL)
			switch {
			case err != nil:
				p.logger.Warn("blob cache get failed", zap.Error(err), zap.String("key", f.URL))
			case ok:
				data = cached
			}

			if len(data) == 0 {
				fetched, err := p.client.FetchBinary(ctx, f.URL)
				if err != nil {
					p.logger.Warn("attachment fetch failed", zap.Error(err), zap.String("key", f.URL))
				} else {
					data = fetched
					if err := p.blobs.Put(ctx, f.URL, fetched); err != nil {
						p.logger.Warn("blob cache put failed", zap.Error(err), zap.String("key", f.URL))
					}
				}
			}
		}
		uploads = append(uploads, api.FileUpload{Name: f.Name, MimeType: f.MimeType, Data: data})
	}
	return uploads
}
