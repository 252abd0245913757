package domain

import "errors"

var (
	// ErrNoPersona indica que se intento enviar sin una persona seleccionada.
	ErrNoPersona = errors.New("no persona selected")
	// ErrBlocked indica que la cuenta no tiene mensajes disponibles.
	ErrBlocked = errors.New("message quota exhausted")
)
