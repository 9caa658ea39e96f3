/*
Package dsl provides a fluent Go API for declaring dialogs and steps in code.

It is an alternative to configuration files for embedded bots and tests:

	b := dsl.New()

	b.Step("name").Prompt("What is your name?")
	b.Step("age").Prompt("How old are you?").Integer().
		Retry("Please answer with a number.")

	b.Dialog("greeting").Steps("name", "age").Intents("Greeting")

	loader, err := b.Build()
	// ... pass loader to ddialog.New("", ddialog.WithLoader(loader))
*/
package dsl
