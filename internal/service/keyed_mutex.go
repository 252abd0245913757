package service

import "sync"

// keyedMutex serializa trabajo por clave. Se usa para garantizar que nunca
// haya dos pipelines en vuelo para la misma persona/chat.
type keyedMutex struct {
	muMap sync.Map
}

func (km *keyedMutex) Lock(key string) {
	mu, _ := km.muMap.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
}

func (km *keyedMutex) Unlock(key string) {
	mu, ok := km.muMap.Load(key)
	if ok {
		mu.(*sync.Mutex).Unlock()
	}
}
