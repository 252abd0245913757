package service

import "sync"

// ChatRegistry mantiene el mapeo persona -> chat id de la sesion. A lo sumo
// un chat por persona; el id se cachea la primera vez que se crea.
type ChatRegistry struct {
	mu    sync.Mutex
	chats map[string]int64
}

func NewChatRegistry() *ChatRegistry {
	return &ChatRegistry{chats: make(map[string]int64)}
}

func (r *ChatRegistry) Lookup(personaID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.chats[personaID]
	return id, ok
}

func (r *ChatRegistry) Store(personaID string, chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[personaID] = chatID
}
