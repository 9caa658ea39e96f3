package graph_test

import (
	"testing"

	"github.com/aretw0/ddialog/internal/presentation/graph"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog(t *testing.T) *domain.Catalog {
	t.Helper()
	c, err := domain.NewCatalog(
		[]domain.DialogDefinition{
			{Name: "greeting", Steps: []string{"name", "age", "confirm"}, DispatchIntents: []string{"Greeting"}},
			{Name: "re-order", Steps: []string{"name"}},
		},
		[]domain.StepDefinition{
			{Name: "name", Type: domain.ValueString},
			{Name: "age", Type: domain.ValueInteger, RunMode: domain.RunModeTraining},
			{Name: "confirm", Type: domain.ValueCard},
		},
	)
	require.NoError(t, err)
	return c
}

func TestGenerateMermaid_Shapes(t *testing.T) {
	out := graph.GenerateMermaid(catalog(t), nil)

	assert.Contains(t, out, "graph TD\n")
	assert.Contains(t, out, `subgraph greeting["greeting <br/> Greeting"]`)
	assert.Contains(t, out, `greeting__0[/"name"/]`)
	assert.Contains(t, out, `greeting__1[("age")]`)
	assert.Contains(t, out, `greeting__2[["confirm"]]`)
	assert.Contains(t, out, "greeting__0 -. confirm .-> greeting__1")
	assert.Contains(t, out, "greeting__2 --> greeting__end")
	assert.Contains(t, out, `subgraph re_order["re-order"]`)
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	p := domain.NewProgress("c1")
	p.DialogName = "greeting"
	p.StepIndex = 2

	out := graph.GenerateMermaid(catalog(t), graph.OverlayFor(p))

	assert.Contains(t, out, "class greeting__0 visited;")
	assert.Contains(t, out, "class greeting__1 visited;")
	assert.Contains(t, out, "class greeting__2 current;")
	assert.NotContains(t, out, "class re_order__0")
}

func TestOverlayFor_Idle(t *testing.T) {
	assert.Nil(t, graph.OverlayFor(nil))
	assert.Nil(t, graph.OverlayFor(domain.NewProgress("c1")))
}

func TestGenerateMermaid_UnknownOverlayDialog(t *testing.T) {
	out := graph.GenerateMermaid(catalog(t), &graph.Overlay{Dialog: "gone"})
	assert.NotContains(t, out, "classDef")
}
