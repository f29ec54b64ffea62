/*
Package domain contains the core models of the intake conversation engine.

It defines the entities every other package agrees on: the conversation context,
tool invocations and their results, turn records, case records and the error
taxonomy. This package is kept pure and free of external dependencies like I/O,
LLM clients or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Context: the ordered key/value bag of everything learned during a conversation.
  - ToolCall / ToolCallResult: a structured LLM function invocation and the updates it produced.
  - TurnRecord: the immutable audit entry emitted for every processed turn.
  - Snapshot: the serializable form of a conversation, used by conversation stores.
  - CaseRecord: the business record created once an intake is confirmed.
*/
package domain
