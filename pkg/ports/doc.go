/*
Package ports defines the driven ports (interfaces) for the ddialog stepper.

These interfaces decouple the stepper from its external collaborators, allowing
it to work with various configuration sources, recognizers, transports and
storage backends.

# Key Interfaces

  - DefinitionLoader: loads dialog and step definitions (e.g., from Loam or Memory).
  - Recognizer: the NLU collaborator returning intents and entities.
  - Transport: sends text and structured payloads back to the user.
  - ProgressStore: persists and loads per-conversation Progress.
  - TelemetrySink: receives structured telemetry events.
  - DistributedLocker: coordinates turn processing across replicas.
*/
package ports
