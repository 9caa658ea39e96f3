package ddialog_test

import (
	"context"
	"fmt"

	"github.com/aretw0/ddialog"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/dsl"
)

type stdout struct{}

func (stdout) SendText(_ context.Context, text string) error {
	fmt.Println(text)
	return nil
}

func (stdout) SendStructured(_ context.Context, payload any) error {
	fmt.Printf("%v\n", payload)
	return nil
}

func Example() {
	b := dsl.New()
	b.Step("name").Prompt("What is your name?")
	b.Step("age").Prompt("How old are you?").Integer()
	b.Dialog("greeting").Steps("name", "age")

	loader, err := b.Build()
	if err != nil {
		panic(err)
	}

	eng, err := ddialog.New("", ddialog.WithLoader(loader),
		ddialog.WithCompletionPolicy(ddialog.CompletionEnd),
		ddialog.WithCompletionHandler(func(_ context.Context, r *domain.DialogResult) ([]domain.Action, error) {
			msg := fmt.Sprintf("Nice to meet you, %v (%v).", r.Values["name"], r.Values["age"])
			return []domain.Action{domain.SendText(msg)}, nil
		}),
	)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	for _, text := range []string{"hello", "Ada", "thirty-six"} {
		if _, err := eng.OnTurn(ctx, domain.NewMessage("conv-1", text), stdout{}); err != nil {
			panic(err)
		}
	}

	// Output:
	// What is your name?
	// How old are you?
	// Nice to meet you, Ada (36).
}
