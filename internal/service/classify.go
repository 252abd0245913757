package service

import (
	"path/filepath"
	"strings"
)

// Classification es el tipo de lote que espera el backend al subir archivos.
type Classification string

const (
	ClassImage    Classification = "image"
	ClassDocument Classification = "document"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".heic": true,
}

var documentExts = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".rtf":  true,
	".xls":  true,
	".xlsx": true,
	".ppt":  true,
	".pptx": true,
}

// Classify determina la clasificacion de un lote de archivos a partir de sus
// nombres. Es una funcion pura y determinista. En lotes mixtos ganan los
// documentos: requieren la ruta de analisis mas conservadora. Lo ambiguo
// tambien cae en documento.
func Classify(names []string) Classification {
	anyImage := false
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if documentExts[ext] {
			return ClassDocument
		}
		if imageExts[ext] {
			anyImage = true
		}
	}
	if anyImage {
		return ClassImage
	}
	return ClassDocument
}

// fileLabel es la etiqueta de tipo de un archivo individual, usada para
// elegir la redaccion de la instruccion.
func fileLabel(name string) string {
	if imageExts[strings.ToLower(filepath.Ext(name))] {
		return "image"
	}
	return "document"
}

// Instruction construye la instruccion en lenguaje natural que acompana a la
// peticion de respuesta, con singular/plural segun el lote y redaccion mixta
// cuando conviven tipos distintos.
func Instruction(class Classification, names []string) string {
	labels := make(map[string]bool, 2)
	for _, name := range names {
		labels[fileLabel(name)] = true
	}

	if len(labels) > 1 {
		return "Please analyze these files and summarize the key findings."
	}

	plural := len(names) > 1
	switch class {
	case ClassImage:
		if plural {
			return "Please analyze these images and describe what you see."
		}
		return "Please analyze this image and describe what you see."
	default:
		if plural {
			return "Please analyze these documents and summarize the key findings."
		}
		return "Please analyze this document and summarize the key findings."
	}
}
