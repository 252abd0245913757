package domain

// Attachment es un archivo asociado a un mensaje de usuario. URL es la clave
// estable del recurso; FileID queda en cero hasta que el backend confirma la
// subida. Un Attachment no muta despues de que su mensaje se completa.
type Attachment struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
	FileID   int64  `json:"file_id,omitempty"`
	Data     []byte `json:"-"`
}

// Uploaded indica si el backend ya asigno un id de referencia.
func (a Attachment) Uploaded() bool {
	return a.FileID != 0
}
