package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"
)

// Decoder convierte un stream de bytes en una secuencia ordenada de deltas
// UTF-8. Es reutilizable entre invocaciones; todo el estado vive dentro de
// cada llamada a Decode.
type Decoder struct {
	delay time.Duration
}

// NewDecoder crea un decoder con la pausa dada entre deltas. La pausa cede
// control al consumidor entre emisiones; cero la desactiva.
func NewDecoder(delay time.Duration) *Decoder {
	return &Decoder{delay: delay}
}

// Decode lee r hasta agotarlo, invocando emit por cada delta en orden.
// Devuelve siempre el texto acumulado hasta el momento del retorno: en caso
// de corte a mitad de stream el parcial no se descarta. Una secuencia UTF-8
// partida entre chunks se retiene hasta completarse.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, emit func(delta string)) (string, error) {
	var (
		total []byte
		carry []byte
		buf   = make([]byte, 4096)
	)

	for {
		if err := ctx.Err(); err != nil {
			return string(total), err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			complete := completePrefix(chunk)
			carry = chunk[complete:]

			if complete > 0 {
				delta := chunk[:complete]
				total = append(total, delta...)
				emit(string(delta))

				if err := d.pause(ctx); err != nil {
					return string(total), err
				}
			}
		}

		if readErr != nil {
			if len(carry) > 0 {
				// Cola invalida o truncada: se entrega tal cual.
				total = append(total, carry...)
				emit(string(carry))
			}
			if errors.Is(readErr, io.EOF) {
				return string(total), nil
			}
			return string(total), fmt.Errorf("read stream: %w", readErr)
		}
	}
}

func (d *Decoder) pause(ctx context.Context) error {
	if d.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// completePrefix devuelve la longitud del prefijo de b cuyos runes estan
// completos. Como mucho los ultimos utf8.UTFMax-1 bytes pueden quedar fuera.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
