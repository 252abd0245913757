package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"medichat/internal/domain"
)

// Client define el colaborador de red del nucleo. El backend es una caja
// negra: solo importa el contrato de cada operacion.
type Client interface {
	CreateChat(ctx context.Context, personaID string) (int64, error)
	AnalyzeFiles(ctx context.Context, files []FileUpload) ([]AnalyzedFile, error)
	UploadFiles(ctx context.Context, chatID int64, files []FileUpload, classification string) ([]UploadedFile, error)
	StreamReply(ctx context.Context, req ReplyRequest) (io.ReadCloser, error)
	GetConversationHistory(ctx context.Context, chatID int64) ([]domain.Message, error)
	FetchBinary(ctx context.Context, url string) ([]byte, error)
}

// HTTPClient implementa Client contra la API HTTP del backend.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient construye un cliente apuntando al backend de la aplicacion.
// El timeout cubre las llamadas unitarias; StreamReply usa un cliente sin
// timeout porque la respuesta llega en trozos durante un tiempo arbitrario.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) CreateChat(ctx context.Context, personaID string) (int64, error) {
	body, err := json.Marshal(map[string]string{"persona_id": personaID})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chats", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, &StatusError{Code: resp.StatusCode}
	}

	var out struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.ChatID == 0 {
		return 0, fmt.Errorf("backend returned empty chat id")
	}
	return out.ChatID, nil
}

func (c *HTTPClient) AnalyzeFiles(ctx context.Context, files []FileUpload) ([]AnalyzedFile, error) {
	body, contentType, err := multipartBody(files, "")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/analyze", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out struct {
		Files []AnalyzedFile `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return out.Files, nil
}

func (c *HTTPClient) UploadFiles(ctx context.Context, chatID int64, files []FileUpload, classification string) ([]UploadedFile, error) {
	body, contentType, err := multipartBody(files, classification)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chats/%d/files", c.baseURL, chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out struct {
		Files []UploadedFile `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return out.Files, nil
}

// StreamReply abre el stream de respuesta. El cuerpo devuelto es propiedad
// del llamador, que debe cerrarlo; un status no exitoso se reporta como error
// inmediato sin cuerpo.
func (c *HTTPClient) StreamReply(ctx context.Context, replyReq ReplyRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(replyReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/replies", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, "application/json")

	// Sin timeout global: la cancelacion llega por ctx.
	streamClient := &http.Client{Transport: c.client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return resp.Body, nil
}

func (c *HTTPClient) GetConversationHistory(ctx context.Context, chatID int64) ([]domain.Message, error) {
	url := fmt.Sprintf("%s/chats/%d/messages", c.baseURL, chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return out.Messages, nil
}

// FetchBinary descarga un recurso remoto, tipicamente una imagen ya alojada.
func (c *HTTPClient) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func (c *HTTPClient) setHeaders(req *http.Request, contentType string) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
}

func multipartBody(files []FileUpload, classification string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if classification != "" {
		if err := w.WriteField("classification", classification); err != nil {
			return nil, "", fmt.Errorf("write classification field: %w", err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write form file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}
