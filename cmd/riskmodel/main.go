package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/riskstack/riskmodel/internal/utils"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0
	ExitInput   = 1 // Data or configuration rejected
	ExitError   = 2 // Runtime or I/O failure
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, utils.ErrInvalidInput), errors.Is(err, utils.ErrEmptyInput), errors.Is(err, utils.ErrNotFound):
		return ExitInput
	default:
		return ExitError
	}
}
