package main

import (
	"errors"
	"fmt"
	"io"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
)

const (
	exitFailure   = 1 // environment: I/O, build tool, signals
	exitUsage     = 2 // flags, config, catalog
	exitInvariant = 3 // internal consistency
)

type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return exitFailure
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	switch bcperrors.GetCode(err) {
	case bcperrors.ErrCodeConfigLoad, bcperrors.ErrCodeConfigParse, bcperrors.ErrCodeConfigInvalid,
		bcperrors.ErrCodeCatalogInvalid, bcperrors.ErrCodeInvalidInput:
		return exitUsage
	case bcperrors.ErrCodeInvariant:
		return exitInvariant
	}
	return exitFailure
}

// printError writes err for the operator. Structured errors add their user
// message and remediation tips; verbose adds the stack captured where the
// error was created.
func printError(w io.Writer, err error, verbose bool) {
	fmt.Fprintf(w, "Error: %v\n", err)
	structured, ok := bcperrors.As(err)
	if !ok {
		return
	}
	if structured.UserMessage != "" {
		fmt.Fprintf(w, "  %s\n", structured.UserMessage)
	}
	for _, tip := range structured.Remediation {
		fmt.Fprintf(w, "  hint: %s\n", tip)
	}
	if verbose && len(structured.Stack) > 0 {
		fmt.Fprint(w, structured.StackTrace())
	}
}
