package domain

import "time"

// Snapshot is the serializable form of a conversation. Conversation stores persist
// snapshots so a conversation can be resumed by another process.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	CallID    string         `json:"call_id"`
	State     string         `json:"state"`
	Context   []Entry        `json:"context"`
	History   []HistoryEntry `json:"history,omitempty"`
	Retries   map[string]int `json:"retries,omitempty"`
	Sequence  int            `json:"sequence"`
	Ended     bool           `json:"ended"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = make([]Entry, len(s.Context))
	for i, e := range s.Context {
		out.Context[i] = Entry{Key: e.Key, Value: CopyValue(e.Value), Confidence: e.Confidence}
	}
	out.History = append([]HistoryEntry(nil), s.History...)
	if s.Retries != nil {
		out.Retries = make(map[string]int, len(s.Retries))
		for k, v := range s.Retries {
			out.Retries[k] = v
		}
	}
	return &out
}

// Values returns the context of the snapshot as a map.
func (s *Snapshot) Values() map[string]any {
	out := make(map[string]any, len(s.Context))
	for _, e := range s.Context {
		out[e.Key] = e.Value
	}
	return out
}
