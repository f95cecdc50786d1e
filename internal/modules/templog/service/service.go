package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"templog-server/internal/modules/templog/location"
	"templog-server/internal/modules/templog/repository"
	"templog-server/internal/modules/templog/types"
)

// ValidationError reports user input that was rejected before any lookup or
// storage happened.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// RecordPublisher announces persisted records to other systems.
type RecordPublisher interface {
	Publish(ctx context.Context, record types.Record) error
}

type Service struct {
	repository repository.TemperatureRepository
	locator    location.Provider
	publisher  RecordPublisher
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewService wires the submission and query flows. publisher may be nil.
func NewService(repo repository.TemperatureRepository, locator location.Provider, publisher RecordPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repository: repo,
		locator:    locator,
		publisher:  publisher,
		validate:   validator.New(),
		logger:     logger,
	}
}

type submitInput struct {
	Temp string `validate:"required"`
}

type queryInput struct {
	BottomRange string `validate:"required"`
	TopRange    string `validate:"required"`
}

// Submit validates rawTemp, resolves the current position and stores one
// record. Nothing is stored when validation or the location lookup fails.
func (s *Service) Submit(ctx context.Context, rawTemp string) (types.Record, error) {
	in := submitInput{Temp: strings.TrimSpace(rawTemp)}
	if err := s.validate.Struct(in); err != nil {
		return types.Record{}, fieldError(err, map[string]string{"Temp": "temp"}, map[string]string{"Temp": in.Temp})
	}
	temp, err := parseInt("temp", in.Temp)
	if err != nil {
		return types.Record{}, err
	}

	pos, err := s.locator.CurrentPosition(ctx)
	if err != nil {
		s.logger.Error("location lookup failed", "temp", temp, "error", err)
		return types.Record{}, err
	}

	record := types.Record{Temp: temp, Lat: pos.Latitude, Long: pos.Longitude}
	if err := s.validate.Struct(record); err != nil {
		s.logger.Error("resolved position rejected", "lat", record.Lat, "long", record.Long, "error", err)
		return types.Record{}, fmt.Errorf("%w: %v", location.ErrLocationUnavailable, err)
	}

	id, err := s.repository.Insert(ctx, record)
	if err != nil {
		s.logger.Error("failed to insert record", "temp", temp, "error", err)
		return types.Record{}, err
	}
	record.ID = id
	s.logger.Info("record stored", "id", id, "temp", record.Temp, "lat", record.Lat, "long", record.Long)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, record); err != nil {
			s.logger.Warn("failed to publish record", "id", id, "error", err)
		}
	}
	return record, nil
}

// Query returns every record whose temp lies in [rawBottom, rawTop]. An
// inverted range yields no records.
func (s *Service) Query(ctx context.Context, rawBottom, rawTop string) (types.TempRange, []types.Record, error) {
	in := queryInput{BottomRange: strings.TrimSpace(rawBottom), TopRange: strings.TrimSpace(rawTop)}
	if err := s.validate.Struct(in); err != nil {
		return types.TempRange{}, nil, fieldError(err,
			map[string]string{"BottomRange": "bottomRange", "TopRange": "topRange"},
			map[string]string{"BottomRange": in.BottomRange, "TopRange": in.TopRange})
	}
	low, err := parseInt("bottomRange", in.BottomRange)
	if err != nil {
		return types.TempRange{}, nil, err
	}
	high, err := parseInt("topRange", in.TopRange)
	if err != nil {
		return types.TempRange{}, nil, err
	}

	tr := types.TempRange{Low: low, High: high}
	records, err := s.repository.QueryByTempRange(ctx, low, high)
	if err != nil {
		s.logger.Error("failed to query records", "low", low, "high", high, "error", err)
		return tr, nil, err
	}
	s.logger.Debug("records queried", "low", low, "high", high, "count", len(records))
	return tr, records, nil
}

func parseInt(field, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		reason := "must be a whole number"
		if errors.Is(err, strconv.ErrRange) {
			reason = "out of range"
		}
		return 0, &ValidationError{Field: field, Value: raw, Reason: reason}
	}
	return n, nil
}

// fieldError converts the first validator failure into a ValidationError
// using the form field names.
func fieldError(err error, names, values map[string]string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := names[fe.Field()]
	if field == "" {
		field = fe.Field()
	}
	reason := fe.Tag()
	if reason == "required" {
		reason = "is required"
	}
	return &ValidationError{Field: field, Value: values[fe.Field()], Reason: reason}
}
