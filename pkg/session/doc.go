/*
Package session serializes turns per conversation.

Turns of the same conversation never interleave: the Manager holds a process
mutex per conversation id (garbage collected by reference counting) and, when
configured, a distributed lock so several replicas can share one store.
*/
package session
