package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zwilias/elm-json-go/internal/frontend"
)

func addManifestFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "manifest", "elm.json", "Path to the elm.json manifest to operate on")
}

// stdinPrompter asks for confirmation on the controlling terminal, the way
// an interactive subcommand needs to before it overwrites a manifest.
type stdinPrompter struct{}

func (stdinPrompter) Confirm(message string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [Y/n] ", message)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "" || answer == "y" || answer == "yes", nil
}

func newPrompter(autoYes bool) frontend.Prompter {
	if autoYes {
		return frontend.AutoConfirm{}
	}
	return stdinPrompter{}
}
