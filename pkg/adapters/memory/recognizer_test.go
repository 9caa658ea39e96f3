package memory_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/aretw0/ddialog/pkg/adapters/memory"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecognizer_IntentsAndEntities(t *testing.T) {
	r := memory.NewRecognizer(
		memory.WithIntent("Greeting", "hello", "hi"),
		memory.WithIntent("BookFlight", "book", "flight"),
		memory.WithEntity("personName", regexp.MustCompile(`(?i)my name is (\w+)`)),
	)

	res, err := r.Recognize(context.Background(), domain.NewMessage("c1", "Hello, my name is Dave"))
	require.NoError(t, err)

	intent, score := res.TopIntent()
	assert.Equal(t, "Greeting", intent)
	assert.Equal(t, 0.5, score)
	assert.Equal(t, []any{"Dave"}, res.Entities["personName"])
}

func TestRecognizer_NoMatch(t *testing.T) {
	r := memory.NewRecognizer(memory.WithIntent("BookFlight", "book"))

	res, err := r.Recognize(context.Background(), domain.NewMessage("c1", "bookkeeping"))
	require.NoError(t, err)

	intent, _ := res.TopIntent()
	assert.Equal(t, domain.IntentNone, intent, "keywords match whole words only")
}
