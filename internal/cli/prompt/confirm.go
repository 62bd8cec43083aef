// Package prompt provides interactive terminal prompts for CLI commands.
package prompt

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// Confirm asks a yes/no question and defaults to no, so an accidental
// Enter never confirms a destructive command. Returns ErrAborted on
// Ctrl+C.
func Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label + " [y/N]",
		IsConfirm: true,
	}

	answer, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			// promptui reports any non-affirmative answer as ErrAbort.
			return false, nil
		}
		return false, wrapError(err)
	}

	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}
