package mfclassic

import (
	"errors"
	"fmt"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// Error categories. Every error returned by a Poller matches exactly one
// of these with errors.Is.
var (
	ErrNotPresent = errors.New("card not present")
	ErrProtocol   = errors.New("protocol error")
	ErrTimeout    = errors.New("timeout")
	ErrAuth       = errors.New("authentication error")
)

// ErrNotAuthenticated is the cause of commands issued outside an
// authenticated session.
var ErrNotAuthenticated = errors.New("not authenticated")

var (
	errUnexpectedResponse = errors.New("unexpected response")
	errUnexpectedValidCRC = errors.New("unexpected valid CRC")
)

// MapError translates a link-layer outcome into an error category.
// Unrecognised errors map to ErrProtocol.
func MapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, iso14443a.ErrNotPresent):
		return ErrNotPresent
	case errors.Is(err, iso14443a.ErrColResFailed),
		errors.Is(err, iso14443a.ErrCommunication),
		errors.Is(err, iso14443a.ErrWrongCRC):
		return ErrProtocol
	case errors.Is(err, iso14443a.ErrTimeout):
		return ErrTimeout
	default:
		return ErrProtocol
	}
}

// CommandError reports a failed card command.
type CommandError struct {
	Cmd    byte   // Command opcode
	Kind   error  // One of ErrNotPresent, ErrProtocol, ErrTimeout, ErrAuth
	Cause  error  // Link-layer error (if any)
	Detail string // What went wrong (if not obvious from Cause)
}

func (e *CommandError) Error() string {
	if e == nil {
		return "mfclassic command error"
	}
	msg := fmt.Sprintf("mfclassic %s (0x%02X): %v", cmdName(e.Cmd), e.Cmd, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func linkError(cmd byte, cause error, detail string) error {
	return &CommandError{Cmd: cmd, Kind: MapError(cause), Cause: cause, Detail: detail}
}

func protocolError(cmd byte, format string, args ...any) error {
	return &CommandError{Cmd: cmd, Kind: ErrProtocol, Detail: fmt.Sprintf(format, args...)}
}

func cmdName(cmd byte) string {
	switch cmd {
	case CmdAuthA, CmdAuthB:
		return "auth"
	case CmdBackdoorAuthA, CmdBackdoorAuthB:
		return "backdoor auth"
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdDecrement:
		return "decrement"
	case CmdIncrement:
		return "increment"
	case CmdRestore:
		return "restore"
	case CmdTransfer:
		return "transfer"
	case CmdHalt:
		return "halt"
	default:
		return "frame"
	}
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsProtocolError reports whether err is a protocol error.
func IsProtocolError(err error) bool { return errors.Is(err, ErrProtocol) }

// IsAuthError reports whether err is an authentication error.
func IsAuthError(err error) bool { return errors.Is(err, ErrAuth) }

// IsNotPresent reports whether the card left the field.
func IsNotPresent(err error) bool { return errors.Is(err, ErrNotPresent) }

// Outcome is the link result an exchange is expected to produce.
// Several MIFARE Classic exchanges succeed with what the link layer
// reports as a failure.
type Outcome int

const (
	// OutcomeResponse expects a clean answer.
	OutcomeResponse Outcome = iota
	// OutcomeChecksumFailure expects an answer without a valid CRC_A.
	OutcomeChecksumFailure
	// OutcomeSilence expects the frame wait time to elapse.
	OutcomeSilence
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResponse:
		return "response"
	case OutcomeChecksumFailure:
		return "checksum failure"
	case OutcomeSilence:
		return "silence"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Check compares a link result with the expected outcome. It returns nil
// when they match, and otherwise the error to classify with MapError.
func (o Outcome) Check(err error) error {
	switch o {
	case OutcomeChecksumFailure:
		if errors.Is(err, iso14443a.ErrWrongCRC) {
			return nil
		}
		if err == nil {
			return errUnexpectedValidCRC
		}
	case OutcomeSilence:
		if errors.Is(err, iso14443a.ErrTimeout) {
			return nil
		}
		if err == nil {
			return errUnexpectedResponse
		}
	default:
		if err == nil {
			return nil
		}
	}
	return err
}
