/*
Package flow loads the declarative description of a conversation.

A flow lists the conversation states in order, the edges between them, the fields
each state must collect, the tools offered to the LLM in each state, and the
cross-cutting tables (field aliases, derived-value rules, satisfies mappings and
field types). The animal control intake flow ships embedded as default.yaml; any
other flow following the same shape can be loaded from disk.

Flows are decoded with yaml.v3 and mapped into typed descriptors with mapstructure.
A Definition is immutable after Load and safe for concurrent reads.
*/
package flow
