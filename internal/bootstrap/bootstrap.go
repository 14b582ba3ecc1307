// Package bootstrap wires configuration, AWS clients and services into a
// ready handler. Both entry points build through here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"claims-agent/handler"
	"claims-agent/internal/config"
	"claims-agent/internal/integrations/documents"
	"claims-agent/internal/integrations/openai"
	"claims-agent/internal/integrations/paramstore"
	"claims-agent/internal/integrations/policystore"
	"claims-agent/internal/memory"
	"claims-agent/internal/observability"
	"claims-agent/internal/prompt"
	"claims-agent/internal/repository"
	"claims-agent/internal/retry"
	"claims-agent/internal/usecase"
)

// DynamoDB covers both the turn table and the policy table.
type DynamoDB interface {
	PutItem(ctx context.Context, in *awsdynamodb.PutItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *awsdynamodb.QueryInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.QueryOutput, error)
	GetItem(ctx context.Context, in *awsdynamodb.GetItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error)
}

type SSM interface {
	GetParameter(ctx context.Context, in *awsssm.GetParameterInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParameterOutput, error)
}

type S3 interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Clients are the AWS APIs the service talks to.
type Clients struct {
	DynamoDB DynamoDB
	SSM      SSM
	S3       S3
}

// NewClients builds the AWS SDK clients from a loaded AWS config.
func NewClients(awsCfg aws.Config) Clients {
	return Clients{
		DynamoDB: awsdynamodb.NewFromConfig(awsCfg),
		SSM:      awsssm.NewFromConfig(awsCfg),
		S3:       awss3.NewFromConfig(awsCfg),
	}
}

// App is the wired service.
type App struct {
	Handler *handler.Handler
	Metrics *observability.Metrics
	closers []io.Closer
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

type options struct {
	httpClient *http.Client
}

type Option func(*options)

// WithHTTPClient sets the HTTP client used for the completion provider.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New wires the service. Any error is a start-up failure.
func New(ctx context.Context, cfg *config.Config, clients Clients, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config must not be nil")
	}
	if clients.SSM == nil {
		return nil, errors.New("bootstrap: ssm client must not be nil")
	}
	if clients.DynamoDB == nil {
		return nil, errors.New("bootstrap: dynamodb client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	params, err := paramstore.New(clients.SSM)
	if err != nil {
		return nil, err
	}
	apiKey, err := params.GetSecret(ctx, cfg.ParamPrefix, paramstore.APIKeyName)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load api key: %w", err)
	}

	app := &App{Metrics: observability.NewMetrics()}

	store, err := repository.NewStore(ctx, repository.StoreConfig{
		Backend:     cfg.MemoryBackend,
		TableName:   cfg.StateTable,
		DatabaseURL: cfg.DatabaseURL,
	}, clients.DynamoDB)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: memory store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	retriever, err := memory.NewRetriever(store, memory.Window{MaxTurns: cfg.MemoryMaxTurns, MaxAge: cfg.MemoryMaxAge})
	if err != nil {
		return nil, err
	}

	tpl, err := prompt.LoadFile(cfg.PromptTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: templates: %w", err)
	}
	assembler, err := prompt.NewAssembler(tpl)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: templates: %w", err)
	}

	llmOpts := []openai.Option{openai.WithBaseURL(cfg.LLMBaseURL)}
	if o.httpClient != nil {
		llmOpts = append(llmOpts, openai.WithHTTPClient(o.httpClient))
	}
	llm, err := openai.NewClient(params, cfg.ParamPrefix, llmOpts...)
	if err != nil {
		return nil, err
	}

	policies, err := policystore.New(clients.DynamoDB, cfg.PolicyTable)
	if err != nil {
		return nil, err
	}

	sink, err := newSink(cfg, clients)
	if err != nil {
		return nil, err
	}

	storePolicy := retry.Policy{Timeout: cfg.StoreTimeout, MaxRetries: cfg.StoreRetries, Backoff: cfg.RetryBackoff}
	persistPolicy := retry.Policy{Timeout: cfg.StoreTimeout, MaxRetries: cfg.PersistRetries, Backoff: cfg.RetryBackoff}

	conversations, err := usecase.NewConversationService(usecase.ConversationDeps{
		Retriever: retriever,
		Assembler: assembler,
		Completer: llm,
		Writer:    store,
		Policies:  policies,
		Moderator: llm,
		Metrics:   app.Metrics,
		Logger:    logger,
	}, usecase.ConversationConfig{
		Params: openai.Params{
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		},
		Store:            storePolicy,
		Persist:          persistPolicy,
		Completion:       retry.Policy{Timeout: cfg.CompletionTimeout, MaxRetries: cfg.CompletionRetries, Backoff: cfg.RetryBackoff},
		Policy:           retry.Policy{Timeout: cfg.PolicyTimeout, MaxRetries: cfg.StoreRetries, Backoff: cfg.RetryBackoff},
		MaxMessageLength: cfg.MaxMessageLength,
		SerializeTurns:   cfg.SerializeTurns,
		Moderation:       cfg.ModerationEnabled,
	})
	if err != nil {
		return nil, err
	}

	docs, err := usecase.NewDocumentService(sink, store, usecase.DocumentConfig{
		Store:    storePolicy,
		Persist:  persistPolicy,
		MaxBytes: cfg.MaxDocumentBytes,
	}, app.Metrics, logger)
	if err != nil {
		return nil, err
	}

	app.Handler, err = handler.NewHandler(conversations, usecase.NewCustomerService(logger), docs, handler.Config{
		APIPrefix: cfg.APIPrefix,
		APIKey:    apiKey,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("service wired",
		"memory_backend", cfg.MemoryBackend,
		"model", cfg.LLMModel,
		"documents_bucket", cfg.DocumentsBucket,
		"serialize_turns", cfg.SerializeTurns,
		"moderation", cfg.ModerationEnabled,
	)
	return app, nil
}

func newSink(cfg *config.Config, clients Clients) (usecase.DocumentSink, error) {
	if cfg.DocumentsBucket == "" {
		dir, err := documents.NewDirSink(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return dir, nil
	}
	if clients.S3 == nil {
		return nil, errors.New("bootstrap: s3 client must not be nil when DOCUMENTS_BUCKET is set")
	}
	bucket, err := documents.NewS3Sink(clients.S3, cfg.DocumentsBucket)
	if err != nil {
		return nil, err
	}
	return bucket, nil
}
