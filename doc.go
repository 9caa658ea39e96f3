/*
Package ddialog is a configuration-driven, resumable dialog stepper for
conversational agents.

A dialog is a named, ordered list of prompt steps. Each step asks one
question, recognizes the answer through a pluggable NLU recognizer, coerces it
to the step's declared type (string, integer or structured card) and stores it
under the step name. Progress is persisted between turns, so a conversation
can be resumed by any replica that shares the store.

# Configuration

Definitions live in a directory tree read at startup:

	config/
	  Steps/
	    name.json       {"name": "name", "prompt": "What is your name?", "type": "string"}
	    age.yaml        name: age / prompt: How old are you? / type: int
	  greeting/
	    greeting.json   {"prompts": ["name", "age"], "dispatch_intents": ["Greeting"]}

The Steps folder is a shared library; every other folder holds dialogs, named
after the folder unless a name is given. Invalid configuration fails New with
a *domain.ConfigurationError.

# Usage

	eng, err := ddialog.New("./config",
		ddialog.WithStore(redis.New("localhost:6379", "", 0)),
		ddialog.WithRecognizer("greetingModel", luisRecognizer),
		ddialog.WithDefaultDialog("greeting"),
	)
	if err != nil {
		log.Fatal(err)
	}

	// For every inbound activity:
	res, err := eng.OnTurn(ctx, activity, transport)

OnTurn serializes turns per conversation, loads the progress, runs the
stepper, saves the progress once and only then hands the outbound actions to
the transport. If the context is canceled before the save, nothing is
persisted and nothing is sent.

# Telemetry

Steps and dialogs may declare custom events whose fields are property
addresses such as "Activity.Text as text" or "Entities.personName". Events are
emitted fire-and-forget to the configured sinks; a failing sink never fails a
turn.
*/
package ddialog
