package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/ddialog/pkg/domain"
)

// Overlay marks the position of a conversation on the graph.
type Overlay struct {
	Dialog    string
	StepIndex int
}

// OverlayFor builds an overlay from stored progress. Idle progress yields nil.
func OverlayFor(p *domain.Progress) *Overlay {
	if p == nil || p.DialogName == "" {
		return nil
	}
	return &Overlay{Dialog: p.DialogName, StepIndex: p.StepIndex}
}

// GenerateMermaid renders every dialog of the catalog as a Mermaid subgraph.
// Step shapes follow the value type:
// - string: [/Parallelogram/]
// - int: [(Cylinder)]
// - adaptive_card: [[Subroutine]]
// Training steps get a dotted incoming edge.
func GenerateMermaid(catalog *domain.Catalog, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, d := range catalog.Dialogs() {
		dialogID := sanitizeMermaidID(d.Name)
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", dialogID, label(d.Name, d.DispatchIntents))
		start := dialogID + "__start"
		fmt.Fprintf(&sb, "        %s((\"start\"))\n", start)

		prev := start
		for i, name := range d.Steps {
			step, _ := catalog.Step(name)
			id := stepID(d.Name, i)
			opener, closer := shape(step.Type)
			fmt.Fprintf(&sb, "        %s%s\"%s\"%s\n", id, opener, name, closer)

			arrow := "-->"
			if step.RunMode == domain.RunModeTraining {
				arrow = "-. confirm .->"
			}
			fmt.Fprintf(&sb, "        %s %s %s\n", prev, arrow, id)
			prev = id
		}
		end := dialogID + "__end"
		fmt.Fprintf(&sb, "        %s((\"end\"))\n", end)
		fmt.Fprintf(&sb, "        %s --> %s\n", prev, end)
		sb.WriteString("    end\n")
	}

	if overlay != nil {
		if d, ok := catalog.Dialog(overlay.Dialog); ok {
			sb.WriteString("\n    %% Overlay Styles\n")
			sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
			sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
			for i := 0; i < overlay.StepIndex && i < len(d.Steps); i++ {
				fmt.Fprintf(&sb, "    class %s visited;\n", stepID(d.Name, i))
			}
			if overlay.StepIndex >= 0 && overlay.StepIndex < len(d.Steps) {
				fmt.Fprintf(&sb, "    class %s current;\n", stepID(d.Name, overlay.StepIndex))
			}
		}
	}

	return sb.String()
}

func label(name string, intents []string) string {
	if len(intents) == 0 {
		return name
	}
	return fmt.Sprintf("%s <br/> %s", name, strings.Join(intents, ", "))
}

func shape(t domain.ValueType) (string, string) {
	switch t {
	case domain.ValueInteger:
		return "[(", ")]"
	case domain.ValueCard:
		return "[[", "]]"
	default:
		return "[/", "/]"
	}
}

// Steps may appear in several dialogs, so node ids are scoped by dialog and position.
func stepID(dialog string, index int) string {
	return fmt.Sprintf("%s__%d", sanitizeMermaidID(dialog), index)
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
