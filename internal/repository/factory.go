package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"claims-agent/internal/domain"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Store is the turn log shared by every backend.
type Store interface {
	Append(ctx context.Context, policyNumber, query, response string) error
	Recent(ctx context.Context, policyNumber string, maxCount int, maxAge time.Duration) ([]domain.Turn, error)
}

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	Backend     string
	TableName   string
	DatabaseURL string
}

// NewStore builds the configured backend. dynamo is only consulted for the
// dynamodb backend.
func NewStore(ctx context.Context, cfg StoreConfig, dynamo dynamodbAPI, opts ...Option) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendDynamoDB:
		c, err := New(dynamo, cfg.TableName, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("repository: %s backend requires a database url", BackendPostgres)
		}
		s, err := NewPostgresStore(ctx, cfg.DatabaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewInMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("repository: unknown backend %q", cfg.Backend)
	}
}
