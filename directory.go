package main

import "sync"

// Directory maps player (connection) IDs to the session they belong to.
// The engine is the only writer; it clears entries in the same operation
// that destroys a session so no entry outlives its game.
type Directory struct {
	mu       sync.RWMutex
	byPlayer map[string]string // playerID -> gameID
}

// NewDirectory creates an empty Directory
func NewDirectory() *Directory {
	return &Directory{byPlayer: make(map[string]string)}
}

// Set binds a player to a session, overwriting any previous binding
func (d *Directory) Set(playerID, gameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byPlayer[playerID] = gameID
}

// Get returns the session a player belongs to, or "" if none
func (d *Directory) Get(playerID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byPlayer[playerID]
}

// Remove drops a player's binding only while it still points at the
// given session. A binding already replaced by a newer session is left
// untouched, so a late cleanup of an old game cannot orphan a live one.
func (d *Directory) Remove(playerID, gameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.byPlayer[playerID] == gameID {
		delete(d.byPlayer, playerID)
	}
}

// Len returns the number of bound players
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byPlayer)
}
