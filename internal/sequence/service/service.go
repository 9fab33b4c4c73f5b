package service

import (
	"context"
	"strings"

	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Generator {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("sequence.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Next(ctx context.Context, name string) (int64, error) {
	return s.NextTx(ctx, s.db, name)
}

func (s *Service) NextTx(ctx context.Context, tx *gorm.DB, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, domain.ErrInvalidName
	}
	if tx == nil {
		tx = s.db
	}
	value, err := s.repo.Increment(ctx, tx, name, s.clock.Now().UTC())
	if err != nil {
		s.log.Error("sequence increment failed", zap.String("sequence", name), zap.Error(err))
		return 0, err
	}
	return value, nil
}
