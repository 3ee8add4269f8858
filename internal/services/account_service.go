package services

import (
	"context"
	"fmt"

	"zalo-hub/internal/domain/account"
	"zalo-hub/internal/repository"

	"go.uber.org/zap"
)

// PresenceMirror receives connectivity changes for out-of-process readers.
type PresenceMirror interface {
	SetAccountStatus(ctx context.Context, accountID uint, connected bool, state, detail string) error
}

// AccountService is the credential store used by the session manager.
type AccountService struct {
	accountRepo repository.AccountRepository
	presence    PresenceMirror
	logger      *zap.Logger
}

func NewAccountService(accountRepo repository.AccountRepository, presence PresenceMirror, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		accountRepo: accountRepo,
		presence:    presence,
		logger:      logger,
	}
}

func (s *AccountService) ListEligible(ctx context.Context) ([]account.Account, error) {
	return s.accountRepo.ListEligible(ctx)
}

func (s *AccountService) GetByID(ctx context.Context, id uint) (account.Account, error) {
	return s.accountRepo.GetByID(ctx, id)
}

// SetConnectivity persists the connectivity flag and mirrors it to the
// presence store when one is configured.
func (s *AccountService) SetConnectivity(ctx context.Context, id uint, connected bool) error {
	if err := s.accountRepo.SetConnectivity(ctx, id, connected); err != nil {
		return fmt.Errorf("set connectivity of account %d: %w", id, err)
	}
	if s.presence != nil {
		state := "disconnected"
		if connected {
			state = "connected"
		}
		if err := s.presence.SetAccountStatus(ctx, id, connected, state, ""); err != nil {
			s.logger.Warn("mirror account presence failed", zap.Uint("account_id", id), zap.Error(err))
		}
	}
	return nil
}

// RecordOwnID stores the protocol user id learned at login.
func (s *AccountService) RecordOwnID(ctx context.Context, id uint, ownID string) error {
	if ownID == "" {
		return nil
	}
	return s.accountRepo.UpdateZaloUserID(ctx, id, ownID)
}
