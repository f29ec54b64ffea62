package session

// LockCount returns the number of per-session locks currently held in memory.
func LockCount(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Pending returns the number of turns queued behind the one in flight for sessionID.
func Pending(m *Manager, sessionID string) int {
	o, ok := m.cached(sessionID)
	if !ok {
		return 0
	}
	return o.Pending()
}
