package calculator

import (
	"errors"
	"fmt"
)

var (
	// ErrDivisionByZero est renvoyée quand le dénominateur d'un ratio est nul.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNoData est renvoyée quand un dataset requis est vide.
	ErrNoData = errors.New("no data")
)

// DivisionError nomme le ratio dont le dénominateur est nul.
type DivisionError struct {
	Metric string
}

func (e *DivisionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Metric, ErrDivisionByZero)
}

func (e *DivisionError) Unwrap() error { return ErrDivisionByZero }

// ChannelError signale une ligne d'attribution qui ne peut pas être calculée.
type ChannelError struct {
	Channel string
	Metric  string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %s: %v", e.Channel, e.Metric, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// divide renvoie num/den, ou une *DivisionError si den vaut 0.
func divide(metric string, num, den float64) (float64, error) {
	if den == 0 {
		return 0, &DivisionError{Metric: metric}
	}
	return num / den, nil
}
