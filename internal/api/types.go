package api

import "fmt"

// FileUpload es un archivo local listo para enviarse al backend.
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// AnalyzedFile es el resultado best-effort del analisis de contenido.
type AnalyzedFile struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// UploadedFile es la referencia que asigna el backend a un archivo subido.
type UploadedFile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ReplyRequest describe una peticion de respuesta del asistente. ChatID en
// cero significa que la conversacion todavia no tiene chat y se envia solo la
// persona.
type ReplyRequest struct {
	ChatID    int64   `json:"chat_id,omitempty"`
	PersonaID string  `json:"persona_id,omitempty"`
	Text      string  `json:"text"`
	FileIDs   []int64 `json:"file_ids,omitempty"`
}

// StatusError representa una respuesta no exitosa del backend antes de que
// llegara cuerpo alguno.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend http error: status=%d", e.Code)
}
