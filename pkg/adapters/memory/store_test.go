package memory_test

import (
	"testing"

	"github.com/aretw0/ddialog/pkg/adapters/memory"
	"github.com/aretw0/ddialog/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunProgressStoreContract(t, memory.NewStore())
}
