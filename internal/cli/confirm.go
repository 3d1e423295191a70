package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/codexswarm/agentctl/internal/config"
)

var (
	confirmPromptStyle = lipgloss.NewStyle().Bold(true)
	confirmHintStyle   = lipgloss.NewStyle().Faint(true)
)

// confirmModel is a one-question yes/no prompt.
type confirmModel struct {
	question string
	answered bool
	accepted bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.answered = true
		m.accepted = true
		return m, tea.Quit
	case "n", "N", "q", "esc", "ctrl+c":
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		answer := "no"
		if m.accepted {
			answer = "yes"
		}
		return fmt.Sprintf("%s %s\n", confirmPromptStyle.Render(m.question), answer)
	}
	return fmt.Sprintf("%s %s\n",
		confirmPromptStyle.Render(m.question),
		confirmHintStyle.Render("[y/n]"))
}

// confirmPrompt asks the question interactively and reports acceptance.
func confirmPrompt(question string) (bool, error) {
	program := tea.NewProgram(confirmModel{question: question}, tea.WithOutput(os.Stderr))
	final, err := program.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(confirmModel)
	return ok && m.accepted, nil
}

// resolveStatusCommitConfirm turns the --confirm-status-commit flag into the
// engine's confirmation bit. Under policy=confirm an interactive terminal
// gets a prompt; a declined prompt or a non-terminal stdin leaves the flag
// unset so the engine refuses the commit.
func resolveStatusCommitConfirm(cfg *config.Config, flagged, wantsCommit bool) (bool, error) {
	if flagged || !wantsCommit {
		return flagged, nil
	}
	if cfg.StatusCommitPolicy != config.PolicyConfirm {
		return false, nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return false, nil
	}
	return confirmPrompt("Commit task/doc changes driven by this status change?")
}
