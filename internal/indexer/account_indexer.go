package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/pkg/normalize"
)

// AccountIndexer handles account indexing
type AccountIndexer struct {
	store  AccountStore
	logger *zap.Logger
}

// NewAccountIndexer creates a new account indexer
func NewAccountIndexer(store AccountStore, logger *zap.Logger) *AccountIndexer {
	return &AccountIndexer{store: store, logger: logger}
}

// Register creates the accounts that do not exist yet and returns the names
// it created, in input order.
func (ai *AccountIndexer) Register(ctx context.Context, names []string, blockDate time.Time) ([]string, error) {
	created := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		existing, err := ai.store.GetByName(ctx, name)
		if err != nil {
			return created, storeErr("check account "+name, err)
		}
		if existing != nil {
			continue
		}

		account := &models.Account{
			Name:       name,
			CreatedAt:  blockDate,
			Reputation: normalize.ReputationScore(0),
		}
		if err := ai.store.Create(ctx, account); err != nil {
			return created, storeErr("create account "+name, err)
		}
		created = append(created, name)

		ai.logger.Debug("Registered new account", zap.String("name", name), zap.Int64("id", account.ID))
	}

	return created, nil
}

// GetID retrieves account ID by name
func (ai *AccountIndexer) GetID(ctx context.Context, name string) (int64, error) {
	account, err := ai.store.GetByName(ctx, name)
	if err != nil {
		return 0, storeErr("get account "+name, err)
	}
	if account == nil {
		return 0, &NotFoundError{What: "account", Key: name}
	}
	return account.ID, nil
}
