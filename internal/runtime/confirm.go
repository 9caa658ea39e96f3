package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/ddialog/pkg/domain"
)

// ParseConfirmation reads a yes/no answer from the activity text, or from a
// boolean payload. valid is false for anything else.
func ParseConfirmation(activity *domain.Activity) (confirmed bool, valid bool) {
	if b, ok := activity.Value.(bool); ok {
		return b, true
	}

	input := activity.Text
	if input == "" && activity.Value != nil {
		input = fmt.Sprintf("%v", activity.Value)
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes", "true", "1":
		return true, true
	case "n", "no", "false", "0":
		return false, true
	default:
		return false, false
	}
}
