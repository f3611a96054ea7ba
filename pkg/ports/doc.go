/*
Package ports defines the driven ports (interfaces) for the tendril engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various completion services, model sinks and storage
backends.

# Key Interfaces

  - CompletionService: the LLM boundary (system + user prompt in, text out).
  - ModelSaver: hands a collected model to an external persistence service.
  - IntentMatcher: resolves free user input to a topic name.
  - SnapshotStore: persists conversation snapshots between turns.
  - DistributedLocker: Provides distributed locking for handling concurrent conversation access.

The topic registry boundary lives next to the topic type (topic.Lookup) so
this package stays free of engine imports.
*/
package ports
