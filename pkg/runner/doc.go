/*
Package runner drives an Engine from a line-oriented console.

Each line read from the IOHandler becomes one message activity for a single
conversation; the engine's actions are written back through the same handler,
which doubles as the turn's Transport.

# Key Components

  - Runner: the read-eval loop for one conversation.
  - IOHandler: how input is read and actions are presented.
  - TextHandler: interactive usage, optionally rendering prompts as markdown.
  - JSONHandler: JSON-Lines in and out, for scripted hosts.

# Usage

	r := runner.New(engine,
		runner.WithConversationID("user-1"),
		runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}

Lines beginning with "{" are submitted as structured values (card
submissions). "exit" and "quit" stop the loop; "/reset" forgets the
conversation's progress.
*/
package runner
