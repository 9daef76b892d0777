// Package gateway turns a prediction request into a feature vector and runs
// it through the backend of the requested format.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/cuongbtq/pricing-pipeline/internal/inference/artifact"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/backend"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/cache"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/dto"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/encoder"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/schema"
)

// ErrUnknownModelGroup is returned for a group that is malformed or not served
var ErrUnknownModelGroup = errors.New("unknown model group")

// ErrNoModelGroups is returned by Preload when no group is configured
var ErrNoModelGroups = errors.New("no model groups configured")

var groupPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config holds the gateway settings
type Config struct {
	Columns schema.Columns
	// ModelGroups restricts the served groups; empty serves any well-formed group
	ModelGroups    []string
	RequestTimeout time.Duration
}

// Service is the inference gateway
type Service struct {
	columns        schema.Columns
	groups         []string
	requestTimeout time.Duration
	artifacts      artifact.Store
	encoders       *cache.Loader
	backends       map[backend.Format]backend.Backend
	logger         *slog.Logger
}

// NewService creates the gateway over the given backends
func NewService(cfg Config, artifacts artifact.Store, encoders *cache.Loader, backends []backend.Backend, logger *slog.Logger) *Service {
	s := &Service{
		columns:        cfg.Columns,
		groups:         cfg.ModelGroups,
		requestTimeout: cfg.RequestTimeout,
		artifacts:      artifacts,
		encoders:       encoders,
		backends:       make(map[backend.Format]backend.Backend, len(backends)),
		logger:         logger,
	}
	for _, b := range backends {
		s.backends[b.Format()] = b
	}
	return s
}

// Predict returns the predicted price of req using the backend of format
func (s *Service) Predict(ctx context.Context, format backend.Format, req *dto.PredictionRequest) (float64, error) {
	b, ok := s.backends[format]
	if !ok {
		return 0, fmt.Errorf("%w: %q", backend.ErrUnknownFormat, format)
	}
	if err := s.checkGroup(req.ModelGroup); err != nil {
		return 0, err
	}

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	features, err := s.Features(ctx, req)
	if err != nil {
		return 0, err
	}

	price, err := b.Predict(ctx, req.ModelGroup, features)
	if err != nil {
		return 0, fmt.Errorf("%s prediction for group %s: %w", format, req.ModelGroup, err)
	}
	return price, nil
}

// Features builds the model input: numerical values, then the ordinal codes
// of the categorical values in the encoder's fitted order
func (s *Service) Features(ctx context.Context, req *dto.PredictionRequest) ([]float64, error) {
	enc, err := s.encoder(ctx, req.ModelGroup)
	if err != nil {
		return nil, err
	}

	features := make([]float64, 0, len(s.columns.Numerical)+len(s.columns.Categorical))
	for _, name := range s.columns.Numerical {
		v, err := req.Numerical(name)
		if err != nil {
			return nil, err
		}
		features = append(features, v)
	}

	categories := make([]string, len(s.columns.Categorical))
	for i, name := range s.columns.Categorical {
		if categories[i], err = req.Categorical(name); err != nil {
			return nil, err
		}
	}
	codes, err := enc.Transform(categories)
	if err != nil {
		return nil, err
	}

	return append(features, codes...), nil
}

func (s *Service) encoder(ctx context.Context, group string) (*encoder.Ordinal, error) {
	path := artifact.EncoderPath(group)
	blob, err := s.encoders.Get(ctx, artifact.EncoderName(group), func(ctx context.Context) ([]byte, error) {
		return s.artifacts.Get(ctx, path)
	})
	if err != nil {
		return nil, err
	}

	enc, err := encoder.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("encoder %s: %w", path, err)
	}
	if err := enc.CheckColumns(s.columns.Categorical); err != nil {
		return nil, fmt.Errorf("encoder %s: %w", path, err)
	}
	return enc, nil
}

func (s *Service) checkGroup(group string) error {
	if !groupPattern.MatchString(group) {
		return fmt.Errorf("%w: %q", ErrUnknownModelGroup, group)
	}
	if len(s.groups) > 0 && !slices.Contains(s.groups, group) {
		return fmt.Errorf("%w: %q", ErrUnknownModelGroup, group)
	}
	return nil
}

// Preload loads every configured group into the backends that support it.
// The first failure is returned.
func (s *Service) Preload(ctx context.Context) error {
	if len(s.groups) == 0 {
		return ErrNoModelGroups
	}
	for _, b := range s.backends {
		p, ok := b.(backend.Preloader)
		if !ok {
			continue
		}
		for _, group := range s.groups {
			start := time.Now()
			if err := p.Preload(ctx, group); err != nil {
				return fmt.Errorf("failed to preload %s model for group %s: %w", b.Format(), group, err)
			}
			s.logger.Info("Model preloaded",
				slog.String("format", string(b.Format())),
				slog.String("model_group", group),
				slog.Duration("elapsed", time.Since(start)),
			)
		}
	}
	return nil
}
