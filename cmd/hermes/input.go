package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
)

// lineInput reads REPL lines. It prefers readline (history, line editing)
// and degrades to plain buffered stdin when no terminal is available, so
// piped input still works.
type lineInput struct {
	rl    *readline.Instance
	plain *bufio.Reader
}

// newLineInput opens the line editor. The returned reader is always usable;
// a non-nil error only reports that the editor fell back to plain stdin.
func newLineInput(historyPath string) (*lineInput, error) {
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
			return &lineInput{plain: bufio.NewReader(os.Stdin)}, fmt.Errorf("create history dir: %w", err)
		}
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyPath,
		HistorySearchFold: true,
	})
	if err != nil {
		return &lineInput{plain: bufio.NewReader(os.Stdin)}, err
	}
	return &lineInput{rl: rl}, nil
}

func (l *lineInput) ReadLine(prompt string) (string, error) {
	if l.rl != nil {
		l.rl.SetPrompt(prompt)
		return l.rl.Readline()
	}
	fmt.Print(prompt)
	line, err := l.plain.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (l *lineInput) Close() error {
	if l == nil || l.rl == nil {
		return nil
	}
	return l.rl.Close()
}
