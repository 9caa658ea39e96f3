/*
Package domain contains the core domain models for the ddialog stepper.

It defines the static configuration entities (dialogs, steps, telemetry
definitions), the per-conversation execution state (Progress) and the
structural representation of what a turn produces (Actions). This package is
kept pure and free of I/O and persistence concerns.

# Key Entities

  - DialogDefinition: a named, ordered sequence of steps.
  - StepDefinition: a single prompt/recognition unit with a value type.
  - Catalog: the validated, immutable set of dialogs and steps.
  - Progress: the persisted position and collected values of a conversation.
  - StepResult: the normalized outcome of recognizing one user reply.
  - Action: an outbound side-effect (text or structured payload) for the transport.
*/
package domain
