package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/intake/pkg/domain"
)

// Snapshot returns the serializable form of the conversation. It waits for the
// turn in flight, if any.
func (o *Orchestrator) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	if err := o.queue.acquire(ctx); err != nil {
		return nil, err
	}
	defer o.queue.release()
	return o.snapshotLocked(), nil
}

func (o *Orchestrator) snapshotLocked() *domain.Snapshot {
	state := ""
	if o.current != nil {
		state = o.current.Name()
	}
	retries := make(map[string]int, len(o.retries))
	for k, v := range o.retries {
		if v > 0 {
			retries[k] = v
		}
	}
	return &domain.Snapshot{
		SessionID: o.sessionID,
		CallID:    o.callID,
		State:     state,
		Context:   o.ctx.Entries(),
		History:   append([]domain.HistoryEntry(nil), o.history...),
		Retries:   retries,
		Sequence:  o.seq,
		Ended:     o.ended,
		StartedAt: o.startedAt,
		UpdatedAt: o.updatedAt,
	}
}

// Restore resumes a conversation from a snapshot, typically one saved by
// another process.
func (o *Orchestrator) Restore(ctx context.Context, snap *domain.Snapshot) error {
	if err := o.queue.acquire(ctx); err != nil {
		return err
	}
	defer o.queue.release()

	return o.restoreLocked(snap)
}

func (o *Orchestrator) restoreLocked(snap *domain.Snapshot) error {
	state, ok := o.states.Get(snap.State)
	if !ok {
		return fmt.Errorf("cannot restore session %s: unknown state %q", snap.SessionID, snap.State)
	}

	o.resetLocked()
	o.sessionID = snap.SessionID
	o.callID = snap.CallID
	o.current = state
	o.ctx.Load(snap.Context)
	o.history = append([]domain.HistoryEntry(nil), snap.History...)
	for k, v := range snap.Retries {
		o.retries[k] = v
	}
	o.seq = snap.Sequence
	o.ended = snap.Ended
	o.started = true
	o.startedAt = snap.StartedAt
	o.updatedAt = snap.UpdatedAt
	return nil
}

// refreshLocked adopts the stored snapshot when it is ahead of the local one.
func (o *Orchestrator) refreshLocked(ctx context.Context) {
	if o.store == nil {
		return
	}
	snap, err := o.store.Load(ctx, o.sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			o.logger.Warn("Failed to refresh conversation", "session_id", o.sessionID, "err", err)
		}
		return
	}
	if snap.Sequence <= o.seq && snap.CallID == o.callID {
		return
	}
	if err := o.restoreLocked(snap); err != nil {
		o.logger.Warn("Failed to refresh conversation", "session_id", o.sessionID, "err", err)
		return
	}
	o.logger.Debug("Conversation refreshed from store", "session_id", o.sessionID, "sequence", snap.Sequence)
}

// Pending returns the number of turns waiting behind the one in flight.
func (o *Orchestrator) Pending() int {
	return o.queue.pending()
}
