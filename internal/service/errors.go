package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shiramwangi/gawa/internal/repository"
)

// ValidationError reports a request the caller can fix: a bad amount, an
// unknown status or an amount beyond what the order still needs.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// InvalidStateError reports an operation the entity's current status does not allow.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string { return e.Msg }

type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string { return e.Msg }

// ErrDuplicateRequest is returned when an Idempotency-Key has already been used.
var ErrDuplicateRequest = errors.New("idempotency key already used")

// newReference returns prefix-XXXXXXXX with eight upper-case hex characters.
var newReference = func(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(hex[:8])
}

const referenceAttempts = 5

// withReference runs insert with a fresh reference, drawing a new one while
// the store reports it as taken.
func withReference[T any](prefix string, insert func(ref string) (T, error)) (T, error) {
	for attempt := 1; ; attempt++ {
		v, err := insert(newReference(prefix))
		if errors.Is(err, repository.ErrDuplicateReference) && attempt < referenceAttempts {
			logger.Warn().Str("prefix", prefix).Int("attempt", attempt).Msg("reference collision, retrying")
			continue
		}
		return v, err
	}
}
