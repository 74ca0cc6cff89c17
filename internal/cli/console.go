package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
	"unicode"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

var errPromptInterrupted = errors.New("prompt interrupted")

var stdinReader = bufio.NewReader(os.Stdin)
var ansiEscapeRE = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
var caretEscapeRE = regexp.MustCompile(`\^\[\[[0-9;?]*[ -/]*[@-~]`)

var (
	askOneFn   = survey.AskOne
	readLineFn = readLineEditable
)

// terminalConsole answers step prompts on the controlling terminal: free
// text through readline, secrets, confirmations and choices through survey.
type terminalConsole struct{}

func newTerminalConsole() terminalConsole { return terminalConsole{} }

func (terminalConsole) Ask(question, def string) (string, error) {
	prompt := fmt.Sprintf("  %s: ", question)
	if def != "" {
		prompt = fmt.Sprintf("  %s [%s]: ", question, color.CyanString(def))
	}
	s, err := readLineClean(prompt)
	if err != nil {
		return "", err
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

func (terminalConsole) Password(question, def string) (string, error) {
	var answer string
	if err := askOne(&survey.Password{Message: question}, &answer); err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (terminalConsole) Confirm(question string, def bool) (bool, error) {
	answer := def
	if err := askOne(&survey.Confirm{Message: question, Default: def}, &answer); err != nil {
		return false, err
	}
	return answer, nil
}

func (terminalConsole) Select(question string, options []string, def string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no options to choose from for %q", question)
	}
	prompt := &survey.Select{Message: question, Options: options}
	if slices.Contains(options, def) {
		prompt.Default = def
	}
	var choice string
	if err := askOne(prompt, &choice); err != nil {
		return "", err
	}
	return choice, nil
}

func askOne(p survey.Prompt, response any) error {
	err := askOneFn(p, response)
	// Clear delayed terminal control responses left by survey rendering.
	drainStdin()
	if errors.Is(err, terminal.InterruptErr) {
		return errPromptInterrupted
	}
	return err
}

func readLineClean(prompt string) (string, error) {
	raw, err := readLineFn(prompt)
	if err != nil {
		return "", err
	}
	raw = ansiEscapeRE.ReplaceAllString(raw, "")
	raw = caretEscapeRE.ReplaceAllString(raw, "")
	raw = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	return strings.TrimSpace(raw), nil
}

func readLineEditable(prompt string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{Prompt: prompt})
	if err == nil {
		line, err := rl.Readline()
		_ = rl.Close()
		// Keep bufio reader in sync after readline consumed stdin bytes.
		stdinReader.Reset(os.Stdin)
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, readline.ErrInterrupt):
			return "", errPromptInterrupted
		case errors.Is(err, io.EOF):
			return "", io.ErrUnexpectedEOF
		}
	}
	fmt.Print(prompt)
	raw, err := stdinReader.ReadString('\n')
	if err != nil && (raw == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return raw, nil
}
