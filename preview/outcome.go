package preview

import (
	"fmt"
	"io/fs"
	"strings"
)

// OutcomeKind tags a ConversionOutcome
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomePasswordRequired
	OutcomePasswordIncorrect
	OutcomeIncompatibleFormat
	OutcomeConversionFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomePasswordRequired:
		return "password-required"
	case OutcomePasswordIncorrect:
		return "password-incorrect"
	case OutcomeIncompatibleFormat:
		return "incompatible-format"
	case OutcomeConversionFailed:
		return "conversion-failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// ConversionOutcome is the tagged result of one document conversion attempt
type ConversionOutcome struct {
	Kind         OutcomeKind
	ArtifactPath string // absolute path, set on success
	Reason       string
}

func Success(artifactPath string) ConversionOutcome {
	return ConversionOutcome{Kind: OutcomeSuccess, ArtifactPath: artifactPath}
}

func PasswordRequired() ConversionOutcome {
	return ConversionOutcome{Kind: OutcomePasswordRequired, Reason: "password required"}
}

func PasswordIncorrect() ConversionOutcome {
	return ConversionOutcome{Kind: OutcomePasswordIncorrect, Reason: "password incorrect"}
}

func IncompatibleFormat(reason string) ConversionOutcome {
	return ConversionOutcome{Kind: OutcomeIncompatibleFormat, Reason: reason}
}

func ConversionFailed(reason string) ConversionOutcome {
	return ConversionOutcome{Kind: OutcomeConversionFailed, Reason: reason}
}

// ErrorKind classifies an engine failure
type ErrorKind string

const (
	ErrorKindIO       ErrorKind = "io"
	ErrorKindSecurity ErrorKind = "security"
	ErrorKindFormat   ErrorKind = "format"
	ErrorKindEngine   ErrorKind = "engine"
)

// EngineError is returned by the engine adapters. SecurityRelated is set by the
// adapter when the engine reported an encryption or password condition.
type EngineError struct {
	Engine          string
	Kind            ErrorKind
	SecurityRelated bool
	Msg             string
	Err             error
}

// NewEngineError builds an EngineError. Security errors are always security related.
func NewEngineError(engine string, kind ErrorKind, msg string, err error) *EngineError {
	return &EngineError{
		Engine:          engine,
		Kind:            kind,
		SecurityRelated: kind == ErrorKindSecurity,
		Msg:             msg,
		Err:             err,
	}
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Engine, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Engine, e.Msg)
}

func (e *EngineError) Unwrap() error { return e.Err }

// IsSecurityFailure reports whether any engine error in the chain is flagged security related
func IsSecurityFailure(err error) bool {
	found := false
	walkChain(err, func(e error) bool {
		if engineErr, ok := e.(*EngineError); ok && engineErr.SecurityRelated {
			found = true
		}
		return !found
	})
	return found
}

// IsPasswordFailure reports whether err means the document could not be opened
// without a password. The typed flag is checked first. Engines that only report a
// message are matched on "password" when the chain also holds an I/O or security failure.
func IsPasswordFailure(err error) bool {
	if err == nil {
		return false
	}
	if IsSecurityFailure(err) {
		return true
	}
	if !strings.Contains(strings.ToLower(err.Error()), "password") {
		return false
	}
	ioOrSecurity := false
	walkChain(err, func(e error) bool {
		switch v := e.(type) {
		case *EngineError:
			if v.Kind == ErrorKindIO || v.Kind == ErrorKindSecurity {
				ioOrSecurity = true
			}
		case *fs.PathError:
			ioOrSecurity = true
		}
		return !ioOrSecurity
	})
	return ioOrSecurity
}

// walkChain visits err and every error it wraps, depth first, until visit returns false
func walkChain(err error, visit func(error) bool) bool {
	if err == nil {
		return true
	}
	if !visit(err) {
		return false
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return walkChain(u.Unwrap(), visit)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if !walkChain(inner, visit) {
				return false
			}
		}
	}
	return true
}
