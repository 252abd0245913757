package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"medichat/internal/api"
	"medichat/internal/cache"
	"medichat/internal/config"
	"medichat/internal/domain"
	"medichat/internal/service"
	"medichat/internal/stream"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	client := api.NewHTTPClient(cfg.BackendBaseURL, cfg.BackendAPIKey)
	decoder := stream.NewDecoder(0)
	blobs := cache.NewMemoryBlobStore()
	chats := service.NewChatRegistry()
	streams := service.NewStreamController(client, decoder, logger)
	pipeline := service.NewAttachmentPipeline(client, blobs, streams, chats, logger)
	conv := service.NewConversationOrchestrator(client, blobs, streams, pipeline, chats, logger)

	printer := newConsolePrinter()
	unsubscribe := conv.Subscribe(printer.handle)
	defer unsubscribe()

	fmt.Println("===== Consulta Médica =====")
	fmt.Print("ID del doctor: ")
	personaID, _ := reader.ReadString('\n')
	personaID = strings.TrimSpace(personaID)
	conv.SetPersona(personaID)

	fmt.Println("---- Modo Chat (escribe 'salir' para terminar, '/archivo <ruta>' para adjuntar) ----")
	for {
		fmt.Print("Tu > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "salir") || strings.EqualFold(text, "exit") {
			fmt.Println("Saliendo de la consulta...")
			return
		}
		if strings.EqualFold(text, "/limpiar") {
			conv.Clear()
			printer.reset()
			fmt.Println("Conversación vaciada.")
			continue
		}
		if rest, ok := strings.CutPrefix(text, "/archivo "); ok {
			sendFileFlow(ctx, conv, strings.TrimSpace(rest))
			continue
		}

		conv.SendText(ctx, text)
	}
}

func sendFileFlow(ctx context.Context, conv *service.ConversationOrchestrator, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("error leyendo archivo: %v\n", err)
		return
	}
	name := filepath.Base(path)
	conv.SendFiles(ctx, "", []service.IncomingFile{{
		Name:     name,
		MimeType: mime.TypeByExtension(filepath.Ext(name)),
		Data:     data,
	}})
}

// consolePrinter pinta los deltas de streaming sin repetir el contenido ya
// impreso y anuncia los cambios de estado de los adjuntos.
type consolePrinter struct {
	mu         sync.Mutex
	printed    map[string]int
	lastStatus map[string]string
}

func newConsolePrinter() *consolePrinter {
	return &consolePrinter{
		printed:    make(map[string]int),
		lastStatus: make(map[string]string),
	}
}

func (p *consolePrinter) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = make(map[string]int)
	p.lastStatus = make(map[string]string)
}

func (p *consolePrinter) handle(e service.ConversationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := e.Message
	switch msg.Role {
	case domain.RoleSystem:
		if e.Kind == service.ConversationMessageAdded {
			fmt.Printf("\n[sistema] %s\n", msg.Content)
		}
	case domain.RoleAssistant:
		seen := p.printed[msg.ID]
		if len(msg.Content) > seen {
			if seen == 0 {
				fmt.Print("\nDoctor > ")
			}
			fmt.Print(msg.Content[seen:])
			p.printed[msg.ID] = len(msg.Content)
		}
		if !msg.Streaming && p.printed[msg.ID] > 0 {
			fmt.Println()
		}
	case domain.RoleUser:
		if msg.Processing == nil {
			return
		}
		status := msg.Processing.StatusText
		if status != "" && status != p.lastStatus[msg.ID] {
			fmt.Printf("\n[adjuntos] %s\n", status)
			p.lastStatus[msg.ID] = status
		}
	}
}
