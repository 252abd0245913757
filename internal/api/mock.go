package api

import (
	"context"
	"io"
	"strings"

	"medichat/internal/domain"
)

// MockClient permite tests y demos sin backend real.
type MockClient struct {
	ChatID    int64
	Analyzed  []AnalyzedFile
	Uploaded  []UploadedFile
	Reply     string
	History   []domain.Message
	Binary    []byte
	Err       error
	StreamErr error
}

func (m *MockClient) CreateChat(ctx context.Context, personaID string) (int64, error) {
	return m.ChatID, m.Err
}

func (m *MockClient) AnalyzeFiles(ctx context.Context, files []FileUpload) ([]AnalyzedFile, error) {
	return m.Analyzed, m.Err
}

func (m *MockClient) UploadFiles(ctx context.Context, chatID int64, files []FileUpload, classification string) ([]UploadedFile, error) {
	return m.Uploaded, m.Err
}

func (m *MockClient) StreamReply(ctx context.Context, req ReplyRequest) (io.ReadCloser, error) {
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return io.NopCloser(strings.NewReader(m.Reply)), nil
}

func (m *MockClient) GetConversationHistory(ctx context.Context, chatID int64) ([]domain.Message, error) {
	return m.History, m.Err
}

func (m *MockClient) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	return m.Binary, m.Err
}
