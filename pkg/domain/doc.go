/*
Package domain holds the shared vocabulary of the engine: activity and topic
states with their transition tables, the ActivityResult union, card payloads,
events, call frames and the snapshot records used for persistence.

It has no dependencies on the rest of the module so every other package,
adapters included, can import it.
*/
package domain
