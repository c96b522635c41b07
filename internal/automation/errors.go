package automation

import (
	"errors"
	"fmt"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// Sentinel errors shared by the engine and its store implementations.
var (
	ErrRuleNotFound     = errors.New("automation not found")
	ErrRecordNotFound   = errors.New("record not found")
	ErrContactNotFound  = errors.New("contact not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateArchived = errors.New("template is archived")
	ErrNoTemplate       = errors.New("automation has no template")
	ErrNoRecipient      = errors.New("no usable recipient address")
	ErrInvalidEvent     = errors.New("invalid transition event")
	ErrInvalidRule      = errors.New("stored automation is invalid")
)

// runError carries the ledger classification of a failed run.
type runError struct {
	kind domain.ErrorKind
	err  error
}

func (e *runError) Error() string { return fmt.Sprintf("%s: %v", e.kind, e.err) }
func (e *runError) Unwrap() error { return e.err }

func configError(err error) error    { return &runError{kind: domain.ErrConfiguration, err: err} }
func recipientError(err error) error { return &runError{kind: domain.ErrRecipientResolution, err: err} }
func dispatchError(err error) error  { return &runError{kind: domain.ErrDispatch, err: err} }

// KindOf returns the ErrorKind attached to err, if any.
func KindOf(err error) (domain.ErrorKind, bool) {
	var re *runError
	if errors.As(err, &re) {
		return re.kind, true
	}
	return "", false
}
