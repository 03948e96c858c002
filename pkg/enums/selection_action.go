package enums

import "fmt"

// SelectionAction is a selection mutation requested over the API.
type SelectionAction string

const (
	SelectionActionSelect      SelectionAction = "select"
	SelectionActionDeselect    SelectionAction = "deselect"
	SelectionActionToggle      SelectionAction = "toggle"
	SelectionActionSelectAll   SelectionAction = "select_all"
	SelectionActionDeselectAll SelectionAction = "deselect_all"
	SelectionActionToggleAll   SelectionAction = "toggle_all"
)

var validSelectionActions = []SelectionAction{
	SelectionActionSelect,
	SelectionActionDeselect,
	SelectionActionToggle,
	SelectionActionSelectAll,
	SelectionActionDeselectAll,
	SelectionActionToggleAll,
}

// String implements fmt.Stringer.
func (a SelectionAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known SelectionAction.
func (a SelectionAction) IsValid() bool {
	for _, candidate := range validSelectionActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseSelectionAction converts raw input into a SelectionAction.
func ParseSelectionAction(value string) (SelectionAction, error) {
	for _, candidate := range validSelectionActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid selection action %q", value)
}
