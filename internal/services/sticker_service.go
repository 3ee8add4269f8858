package services

import (
	"context"
	"errors"
	"fmt"

	"zalo-hub/internal/domain/sticker"
	"zalo-hub/internal/repository"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StickerCache is an optional shared cache in front of the stickers table.
// GetSticker returns nil on a miss.
type StickerCache interface {
	GetSticker(ctx context.Context, stickerID, cateID int64, stickerType int) (*sticker.Sticker, error)
	SetSticker(ctx context.Context, s sticker.Sticker) error
}

// StickerService is a read-through cache of sticker metadata. A miss is
// fetched from the session once and written with insert-if-absent.
type StickerService struct {
	repo   repository.StickerRepository
	cache  StickerCache
	group  singleflight.Group
	logger *zap.Logger
}

func NewStickerService(repo repository.StickerRepository, cache StickerCache, logger *zap.Logger) *StickerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StickerService{repo: repo, cache: cache, logger: logger}
}

func (s *StickerService) Resolve(ctx context.Context, api zalo.API, ref StickerRef) (sticker.Sticker, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSticker(ctx, ref.ID, ref.CateID, ref.Type)
		if err != nil {
			s.logger.Debug("sticker cache read failed", zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	st, err := s.repo.Get(ctx, ref.ID, ref.CateID, ref.Type)
	if err == nil {
		s.remember(ctx, st)
		return st, nil
	}
	if !errors.Is(err, zalohub_errors.ErrNotFound) {
		return sticker.Sticker{}, err
	}

	key := fmt.Sprintf("%d:%d:%d", ref.ID, ref.CateID, ref.Type)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.fetchAndStore(ctx, api, ref)
	})
	if err != nil {
		return sticker.Sticker{}, err
	}
	st = v.(sticker.Sticker)
	s.remember(ctx, st)
	return st, nil
}

func (s *StickerService) fetchAndStore(ctx context.Context, api zalo.API, ref StickerRef) (sticker.Sticker, error) {
	details, err := api.GetStickersDetail(ctx, ref.ID)
	if err != nil {
		return sticker.Sticker{}, fmt.Errorf("fetch sticker %d: %w", ref.ID, err)
	}
	if len(details) == 0 {
		return sticker.Sticker{}, fmt.Errorf("%w: sticker %d", zalohub_errors.ErrNotFound, ref.ID)
	}

	d := details[0]
	for _, candidate := range details {
		if candidate.ID == ref.ID && candidate.CateID == ref.CateID {
			d = candidate
			break
		}
	}
	st := sticker.Sticker{
		StickerID:        ref.ID,
		CateID:           ref.CateID,
		Type:             ref.Type,
		Text:             d.Text,
		StickerURL:       d.StickerURL,
		StickerSpriteURL: d.StickerSpriteURL,
		StickerWebpURL:   d.StickerWebpURL,
		TotalFrames:      d.TotalFrames,
		Duration:         d.Duration,
	}
	inserted, err := s.repo.CreateIfAbsent(ctx, &st)
	if err != nil {
		return sticker.Sticker{}, fmt.Errorf("store sticker: %w", err)
	}
	if !inserted {
		// another process stored it between our read and write
		return s.repo.Get(ctx, ref.ID, ref.CateID, ref.Type)
	}
	return st, nil
}

func (s *StickerService) remember(ctx context.Context, st sticker.Sticker) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSticker(ctx, st); err != nil {
		s.logger.Debug("sticker cache write failed", zap.Error(err))
	}
}
