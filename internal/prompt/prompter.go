package prompt

import (
	"errors"
	"fmt"
	"io"

	"github.com/manifoldco/promptui"
)

// ErrCancelled is returned when the user declines a confirmation
var ErrCancelled = errors.New("cancelled by user")

// Prompter asks the user for input
type Prompter interface {
	Input(label, def string, validate func(string) error) (string, error)
	Select(label string, items []string) (int, error)
}

// Terminal prompts on the terminal with promptui
type Terminal struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

// Input reads a line of text
func (t Terminal) Input(label, def string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Default:  def,
		Validate: validate,
		Stdin:    t.Stdin,
		Stdout:   t.Stdout,
	}

	result, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("%s prompt failed: %w", label, err)
	}
	return result, nil
}

// Select picks one of items and returns its index
func (t Terminal) Select(label string, items []string) (int, error) {
	p := promptui.Select{
		Label:  label,
		Items:  items,
		Stdin:  t.Stdin,
		Stdout: t.Stdout,
	}

	i, _, err := p.Run()
	if err != nil {
		return 0, fmt.Errorf("%s selection failed: %w", label, err)
	}
	return i, nil
}

// Confirm asks a yes/no question and returns ErrCancelled on "No"
func Confirm(p Prompter, label string) error {
	i, err := p.Select(label, []string{"Yes", "No"})
	if err != nil {
		return err
	}

	if i != 0 { // 0 = "Yes", 1 = "No"
		return ErrCancelled
	}
	return nil
}
