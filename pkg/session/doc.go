/*
Package session implements conversation management and persistence orchestration.

A Manager keeps one orchestrator per live conversation, serializes the turns of
each conversation behind a reference-counted lock (optionally backed by a
distributed locker for multiple replicas) and saves a snapshot after every
turn.
*/
package session
