/*
Package ports defines the driven ports (interfaces) of the intake engine.

These interfaces decouple the conversation core from external implementations,
allowing the engine to work with various LLM providers, storage backends,
analytics sinks and business systems.

# Key Interfaces

  - LLMClient: Chat completion with tool calling (e.g., OpenRouter).
  - TelemetrySink / TelemetryWriter: Fire-and-forget recording of TurnRecords.
  - CaseStore: The business collaborator states use to look up and create cases.
  - ConversationStore: Persistence of conversation snapshots across processes.
  - DistributedLocker: Distributed locking for concurrent access to one conversation.
*/
package ports
