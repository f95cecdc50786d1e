package location

import (
	"context"
	"errors"
	"fmt"

	"templog-server/internal/modules/templog/types"
)

// ErrLocationUnavailable is returned when the current position cannot be
// resolved. Every failed lookup wraps it.
var ErrLocationUnavailable = errors.New("location unavailable")

// Provider resolves the current geographic position. Each call is a fresh,
// single-shot lookup.
type Provider interface {
	CurrentPosition(ctx context.Context) (types.Position, error)
}

// StaticProvider always reports the same configured position.
type StaticProvider struct {
	position types.Position
}

func NewStaticProvider(lat, long float64) (*StaticProvider, error) {
	pos := types.Position{Latitude: lat, Longitude: long}
	if err := validatePosition(pos); err != nil {
		return nil, err
	}
	return &StaticProvider{position: pos}, nil
}

func (p *StaticProvider) CurrentPosition(ctx context.Context) (types.Position, error) {
	if err := ctx.Err(); err != nil {
		return types.Position{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	return p.position, nil
}

func validatePosition(pos types.Position) error {
	if pos.Latitude < -90 || pos.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrLocationUnavailable, pos.Latitude)
	}
	if pos.Longitude < -180 || pos.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrLocationUnavailable, pos.Longitude)
	}
	return nil
}
