/*
Package session maps session IDs to running conversations.

A Manager keeps one orchestrator per live session and persists every turn
through a ConversationStore, so a session can be resumed by another process or
after a restart. Lifecycle operations (start, reset, delete) hold a per-session
lock, reference counted so idle sessions leave nothing behind, plus an optional
distributed lock shared with other replicas. Turns are queued by the
orchestrator itself and take only the distributed lock.
*/
package session
