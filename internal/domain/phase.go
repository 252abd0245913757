package domain

// Phase enumera las etapas del pipeline de adjuntos. El orden numerico es el
// orden de avance: un mensaje nunca retrocede de fase. PhaseDone y
// PhaseDegraded son terminales.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseResolving
	PhaseAnalyzing
	PhaseUploading
	PhaseRequesting
	PhaseDone
	PhaseDegraded
)

// Terminal indica si la fase cierra el pipeline.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseDegraded
}

// StatusText devuelve el texto visible para el usuario. El texto avanza
// "uploading" -> "recognizing" -> "analyzing"; la subida real ocurre despues
// del reconocimiento pero conserva la etiqueta anterior.
func (p Phase) StatusText() string {
	switch p {
	case PhaseResolving:
		return "uploading files"
	case PhaseAnalyzing, PhaseUploading:
		return "recognizing content"
	case PhaseRequesting:
		return "analyzing with model"
	case PhaseDegraded:
		return "files could not be uploaded"
	default:
		return ""
	}
}

func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseUploading:
		return "uploading"
	case PhaseRequesting:
		return "requesting"
	case PhaseDone:
		return "done"
	case PhaseDegraded:
		return "degraded"
	default:
		return "none"
	}
}
