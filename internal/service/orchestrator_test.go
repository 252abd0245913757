package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"medichat/internal/api"
	"medichat/internal/cache"
	"medichat/internal/domain"
	"medichat/internal/stream"
)

func newTestOrchestrator(client api.Client) *ConversationOrchestrator {
	logger := zap.NewNop()
	chats := NewChatRegistry()
	blobs := cache.NewMemoryBlobStore()
	streams := NewStreamController(client, stream.NewDecoder(0), logger)
	pipeline := NewAttachmentPipeline(client, blobs, streams, chats, logger)
	return NewConversationOrchestrator(client, blobs, streams, pipeline, chats, logger)
}

// waitAssistantDone espera a que exista un mensaje de asistente con el
// streaming terminado.
func waitAssistantDone(t *testing.T, o *ConversationOrchestrator) domain.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range o.Messages() {
			if m.Role == domain.RoleAssistant && !m.Streaming {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("assistant message never finished, messages: %+v", o.Messages())
	return domain.Message{}
}

func TestSendTextSkipsChatCreation(t *testing.T) {
	var chatCreations int
	client := &stubClient{
		createChat: func(ctx context.Context, personaID string) (int64, error) {
			chatCreations++
			return 1, nil
		},
		streamReply: func(ctx context.Context, req api.ReplyRequest) (io.ReadCloser, error) {
			if req.ChatID != 0 {
				t.Errorf("text-only path must not carry a chat id, got %d", req.ChatID)
			}
			if req.PersonaID != "dr-garcia" {
				t.Errorf("expected persona in request, got %q", req.PersonaID)
			}
			return io.NopCloser(strings.NewReader("Hola, cuéntame qué te ocurre.")), nil
		},
	}
	o := newTestOrchestrator(client)
	o.SetPersona("dr-garcia")

	userMsg := o.SendText(context.Background(), "hello")
	if userMsg == nil || userMsg.Role != domain.RoleUser || userMsg.Content != "hello" {
		t.Fatalf("expected user message, got %+v", userMsg)
	}

	reply := waitAssistantDone(t, o)
	if chatCreations != 0 {
		t.Fatalf("text-only send must not create a chat")
	}
	if reply.Content == "" || reply.Streaming {
		t.Fatalf("expected finished non-empty reply, got %+v", reply)
	}

	msgs := o.Messages()
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("expected [user, assistant], got %+v", msgs)
	}
}

func TestSendWithoutPersonaIsGuardedNoop(t *testing.T) {
	called := false
	client := &stubClient{
		streamReply: func(ctx context.Context, req api.ReplyRequest) (io.ReadCloser, error) {
			called = true
			return io.NopCloser(strings.NewReader("")), nil
		},
	}
	o := newTestOrchestrator(client)

	msg := o.SendText(context.Background(), "hola")
	if msg == nil || msg.Role != domain.RoleSystem {
		t.Fatalf("expected system guidance message, got %+v", msg)
	}
	if called {
		t.Fatalf("no network call expected without persona")
	}
	if msgs := o.Messages(); len(msgs) != 1 || msgs[0].Role != domain.RoleSystem {
		t.Fatalf("expected only the guidance message, got %+v", msgs)
	}
}

func TestBlockedAccountGetsUpgradePrompt(t *testing.T) {
	var streamCalls, uploadCalls int
	client := &stubClient{
		streamReply: func(ctx context.Context, req api.ReplyRequest) (io.ReadCloser, error) {
			streamCalls++
			return io.NopCloser(strings.NewReader("")), nil
		},
		upload: func(ctx context.Context, chatID int64, files []api.FileUpload, classification string) ([]api.UploadedFile, error) {
			uploadCalls++
			return nil, nil
		},
	}
	o := newTestOrchestrator(client)
	o.SetPersona("dr-garcia")
	o.SetBlocked(true)

	msg := o.SendText(context.Background(), "hola")
	if msg == nil || msg.Role != domain.RoleSystem || !strings.Contains(msg.Content, "Upgrade") {
		t.Fatalf("expected upgrade prompt, got %+v", msg)
	}

	o.SendFiles(context.Background(), "", []IncomingFile{{Name: "a.pdf", Data: []byte("x")}})
	time.Sleep(20 * time.Millisecond)
	if streamCalls != 0 || uploadCalls != 0 {
		t.Fatalf("blocked account must not reach the network (stream=%d upload=%d)", streamCalls, uploadCalls)
	}
}

func TestSendFilesMutatesSingleUserMessage(t *testing.T) {
	client := &stubClient{
		upload: func(ctx context.Context, chatID int64, files []api.FileUpload, classification string) ([]api.UploadedFile, error) {
			return []api.UploadedFile{{ID: 5, Name: files[0].Name}}, nil
		},
		streamReply: func(ctx context.Context, req api.ReplyRequest) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("He revisado el informe.")), nil
		},
	}
	o := newTestOrchestrator(client)
	o.SetPersona("dr-garcia")

	var (
		mu     sync.Mutex
		states []string
	)
	unsubscribe := o.Subscribe(func(e ConversationEvent) {
		if e.Message.Processing == nil {
			return
		}
		mu.Lock()
		if s := e.Message.Processing.StatusText; s != "" && (len(states) == 0 || states[len(states)-1] != s) {
			states = append(states, s)
		}
		mu.Unlock()
	})
	defer unsubscribe()

	userMsg := o.SendFiles(context.Background(), "", []IncomingFile{{Name: "report.pdf", Data: []byte("pdf")}})
	if userMsg.Processing == nil || !userMsg.Processing.InProgress {
		t.Fatalf("expected processing user message, got %+v", userMsg)
	}

	waitAssistantDone(t, o)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msgs := o.Messages()
		if msgs[0].Processing != nil && !msgs[0].Processing.InProgress {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	msgs := o.Messages()
	var userCount int
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			userCount++
		}
	}
	if userCount != 1 {
		t.Fatalf("status updates must mutate the original message, got %d user messages", userCount)
	}
	if msgs[0].ID != userMsg.ID {
		t.Fatalf("user message id must stay stable")
	}
	if msgs[0].Attachments[0].FileID != 5 {
		t.Fatalf("expected enriched reference id, got %+v", msgs[0].Attachments)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"uploading files", "recognizing content", "analyzing with model"}
	if len(states) < len(want) {
		t.Fatalf("expected status texts %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected status texts %v, got %v", want, states)
		}
	}
}

func TestSendCapturedImagesPopulatesCache(t *testing.T) {
	client := &stubClient{
		upload: func(ctx context.Context, chatID int64, files []api.FileUpload, classification string) ([]api.UploadedFile, error) {
			return []api.UploadedFile{{ID: 1, Name: files[0].Name}}, nil
		},
		streamReply: func(ctx context.Context, req api.ReplyRequest) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("ok")), nil
		},
	}
	o := newTestOrchestrator(client)
	o.SetPersona("dr-garcia")

	key := "https://cdn.example.com/captures/img1.jpg"
	o.SendCapturedImages(context.Background(), []IncomingFile{
		{Name: "img1.jpg", MimeType: "image/jpeg", Data: []byte("jpegdata"), URL: key},
	})
	waitAssistantDone(t, o)

	data, ok, err := o.blobs.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("expected captured image in cache, ok=%v err=%v", ok, err)
	}
	if string(data) != "jpegdata" {
		t.Fatalf("unexpected cached payload %q", data)
	}
}

func TestImmediateStreamFailureClearsPlaceholder(t *testing.T) {
	client := &stubClient{
		streamReply: func(ctx context.Context, req api.ReplyRequest) (io.ReadCloser, error) {
			return nil, errors.New("backend unreachable")
		},
	}
	o := newTestOrchestrator(client)
	o.SetPersona("dr-garcia")

	o.SendText(context.Background(), "hola")

	reply := waitAssistantDone(t, o)
	if reply.Streaming {
		t.Fatalf("placeholder left streaming after synchronous failure")
	}
	if !strings.Contains(reply.Content, "could not be completed") {
		t.Fatalf("expected error text on the reply, got %q", reply.Content)
	}
}

func TestPipelineReplyFailureClearsPlaceholder(t *testing.T) {
	client := &stubClient{
		upload: func(ctx context.Context, chatID int64, files []api.FileUpload, classification string) ([]api.UploadedFile, error) {
			return []api.UploadedFile{{ID: 3, Name: files[0].Name}}, nil
		},
		streamReply: func(ctx context.Context, req api.ReplyRequest) (io.ReadCloser, error) {
			return nil, errors.New("backend unreachable")
		},
	}
	o := newTestOrchestrator(client)
	o.SetPersona("dr-garcia")

	o.SendFiles(context.Background(), "", []IncomingFile{{Name: "report.pdf", Data: []byte("pdf")}})

	reply := waitAssistantDone(t, o)
	if reply.Streaming || reply.Content == "" {
		t.Fatalf("delegated reply left unfinished after synchronous failure, got %+v", reply)
	}
}

func TestBlockedCapturedImagesLeaveCacheUntouched(t *testing.T) {
	o := newTestOrchestrator(&stubClient{})
	o.SetPersona("dr-garcia")
	o.SetBlocked(true)

	key := "https://cdn.example.com/captures/img1.jpg"
	msg := o.SendCapturedImages(context.Background(), []IncomingFile{
		{Name: "img1.jpg", MimeType: "image/jpeg", Data: []byte("jpegdata"), URL: key},
	})
	if msg == nil || msg.Role != domain.RoleSystem {
		t.Fatalf("expected upgrade prompt, got %+v", msg)
	}
	if _, ok, _ := o.blobs.Get(context.Background(), key); ok {
		t.Fatalf("rejected send must not populate the cache")
	}
}

func TestClearCancelsInFlightStream(t *testing.T) {
	release := make(chan struct{})
	body := &blockingBody{
		chunks: [][]byte{[]byte("inicio ")},
		done:   release,
	}
	client := &stubClient{
		streamReply: func(ctx context.Context, req api.ReplyRequest) (io.ReadCloser, error) {
			return body, nil
		},
	}
	o := newTestOrchestrator(client)
	o.SetPersona("dr-garcia")

	o.SendText(context.Background(), "hola")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msgs := o.Messages()
		if len(msgs) == 2 && msgs[1].Content != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	o.Clear()
	close(release)

	if msgs := o.Messages(); len(msgs) != 0 {
		t.Fatalf("expected empty conversation after clear, got %+v", msgs)
	}
}
