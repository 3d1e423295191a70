package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

var errColor = color.New(color.FgRed)

// PrintError writes an error to stderr. Workflow errors use the structured
// WHAT/WHY/FIX/CONTEXT format (or JSON under --json); anything else prints
// as a plain error line.
func PrintError(err error) {
	if err == nil {
		return
	}
	e := swarmerrors.As(err)
	if e == nil {
		errColor.Fprintf(os.Stderr, "❌ %v\n", err)
		return
	}
	if globalJSON {
		if data, jerr := json.Marshal(e); jerr == nil {
			fmt.Fprintln(os.Stderr, string(data))
			return
		}
	}
	errColor.Fprintln(os.Stderr, e.UserMessage())
	if globalVerbose {
		fmt.Fprintf(os.Stderr, "\nCode: %s\n", e.Code)
		if e.Cause != nil {
			fmt.Fprintf(os.Stderr, "Cause: %v\n", e.Cause)
		}
	}
}
