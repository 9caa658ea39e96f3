// Package runtime implements the dialog stepper: a pure state machine that
// takes a conversation's progress and an inbound activity and returns the
// next progress plus the actions to send. It performs no persistence.
package runtime
