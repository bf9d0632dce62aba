package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/formscout/formscout/internal/advisor"
	"github.com/formscout/formscout/internal/core"
	apperrors "github.com/formscout/formscout/internal/errors"
	"github.com/formscout/formscout/internal/observability"
)

// ExitCodeFor maps a command error onto a foundry exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	var (
		envelope  *errors.ErrorEnvelope
		configErr *configError
	)
	switch {
	case err == nil:
		return foundry.ExitFailure
	case stderrors.As(err, &configErr), stderrors.Is(err, advisor.ErrDisabled):
		return foundry.ExitConfigInvalid
	case stderrors.Is(err, core.ErrRateLimited):
		return foundry.ExitResourceExhausted
	case stderrors.Is(err, core.ErrSourceNotFound):
		return foundry.ExitInvalidArgument
	case stderrors.As(err, &envelope) && envelope != nil:
		switch envelope.Code {
		case apperrors.CodeConfigInvalid:
			return foundry.ExitConfigInvalid
		case apperrors.CodeRateLimited:
			return foundry.ExitResourceExhausted
		case apperrors.CodeSourceNotFound, apperrors.CodeInvalidInput, apperrors.CodeValidationFailed:
			return foundry.ExitInvalidArgument
		case apperrors.CodeExternalService, apperrors.CodeServiceUnavailable:
			return foundry.ExitExternalServiceUnavailable
		}
	}
	return foundry.ExitFailure
}

// configError marks failures to load or validate configuration.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func loadConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

// Exit terminates the process for a failed command.
func Exit(err error) {
	ExitWithCode(observability.CLILogger, ExitCodeFor(err), "Command failed", err)
}

// ExitWithCode logs err with the exit code's foundry metadata and exits.
// logger may be nil for failures before logging is up.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_description", info.Description),
		zap.String("exit_category", info.Category),
	}
	if envelope, ok := err.(*errors.ErrorEnvelope); ok {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
	}
	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr writes msg and the exit code's metadata to stderr and
// exits. Use it before the logger is initialized.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: %s (exit code: %d)\n", msg, exitCode)
		}
		os.Exit(int(exitCode))
	}

	switch envelope, isEnvelope := err.(*errors.ErrorEnvelope); {
	case isEnvelope && envelope != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s\n", msg, envelope.Code, envelope.Message)
	case err != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)

	os.Exit(info.Code)
}
