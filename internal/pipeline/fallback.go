package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnparseable is returned when neither the original text nor any repaired
// text could be decoded.
var ErrUnparseable = errors.New("payload unparseable")

// FallbackParser decodes text and, when decoding fails, asks Repair for a
// reshaped version and tries again, at most MaxRepairs times.
type FallbackParser[T any] struct {
	Decode     func(text string) (T, error)
	Repair     func(ctx context.Context, text string) (string, error)
	MaxRepairs int
}

// Parse returns the decoded value and how many repair calls were made.
func (p FallbackParser[T]) Parse(ctx context.Context, text string) (T, int, error) {
	v, err := p.Decode(text)
	if err == nil {
		return v, 0, nil
	}

	lastErr := err
	repairs := 0
	for repairs < p.MaxRepairs && p.Repair != nil {
		repairs++
		repaired, rerr := p.Repair(ctx, text)
		if rerr != nil {
			lastErr = fmt.Errorf("repair call: %w", rerr)
			break
		}
		v, err = p.Decode(repaired)
		if err == nil {
			return v, repairs, nil
		}
		lastErr = err
	}

	var zero T
	return zero, repairs, fmt.Errorf("%w: %w", ErrUnparseable, lastErr)
}
