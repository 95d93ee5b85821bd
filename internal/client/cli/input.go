package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func (a *App) promptString(label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *App) promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	password, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// promptDocument reads key=value lines until a blank line and returns them
// as a document.
func (a *App) promptDocument() (map[string]any, error) {
	fmt.Println("Enter fields as key=value, blank line to finish:")
	doc := map[string]any{}
	for {
		line, err := a.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			fmt.Println("expected key=value")
			continue
		}
		doc[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return doc, nil
}

func (a *App) promptYesNo(label string) (bool, error) {
	answer, err := a.promptString(label + " (y/n)")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes"), nil
}
