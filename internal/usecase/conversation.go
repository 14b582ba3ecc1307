package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"claims-agent/internal/domain"
	"claims-agent/internal/integrations/openai"
	"claims-agent/internal/integrations/policystore"
	"claims-agent/internal/intent"
	"claims-agent/internal/observability"
	"claims-agent/internal/prompt"
	"claims-agent/internal/retry"
)

const defaultMaxMessageLen = 2000

// Turn outcomes as logged and counted.
const (
	OutcomeSuccess            = "success"
	OutcomePersistenceWarning = "persistence_warning"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeMemoryUnavailable  = "memory_unavailable"
	OutcomePolicyUnavailable  = "policy_unavailable"
	OutcomeConfiguration      = "configuration_error"
	OutcomeCompletionFailure  = "completion_failure"
	OutcomeCancelled          = "cancelled"
)

type HistoryRetriever interface {
	Retrieve(ctx context.Context, policyNumber string) ([]string, error)
}

type PromptAssembler interface {
	Assemble(in prompt.Input) ([]domain.ChatMessage, error)
}

type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, p openai.Params) (string, error)
}

type Moderator interface {
	Moderate(ctx context.Context, input string) (bool, error)
}

type TurnWriter interface {
	Append(ctx context.Context, policyNumber, query, response string) error
}

type PolicyProvider interface {
	GetPolicyInformation(ctx context.Context, policyNumber string) (*domain.PolicyInformation, error)
}

// ConversationDeps are the collaborators of one ConversationService.
// Moderator, Classifier, Metrics and Logger are optional.
type ConversationDeps struct {
	Retriever  HistoryRetriever
	Assembler  PromptAssembler
	Completer  Completer
	Writer     TurnWriter
	Policies   PolicyProvider
	Moderator  Moderator
	Classifier intent.Classifier
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// ConversationConfig tunes turn handling. Each collaborator gets its own
// timeout and retry budget.
type ConversationConfig struct {
	Params           openai.Params
	Store            retry.Policy
	Persist          retry.Policy
	Completion       retry.Policy
	Policy           retry.Policy
	MaxMessageLength int
	SerializeTurns   bool
	Moderation       bool
}

// ConversationService runs one conversational turn end to end:
// retrieve history, enrich, assemble, complete, persist.
type ConversationService struct {
	deps  ConversationDeps
	cfg   ConversationConfig
	log   *slog.Logger
	locks *keyedMutex
}

type TurnInput struct {
	PolicyNumber  string
	Message       string
	CorrelationID string
}

// TurnOutput is the reply for one turn. Persisted is false when the reply
// could not be written to memory.
type TurnOutput struct {
	AIMessage string
	Persisted bool
}

func NewConversationService(deps ConversationDeps, cfg ConversationConfig) (*ConversationService, error) {
	if deps.Retriever == nil {
		return nil, errors.New("usecase: retriever must not be nil")
	}
	if deps.Assembler == nil {
		return nil, errors.New("usecase: assembler must not be nil")
	}
	if deps.Completer == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if deps.Writer == nil {
		return nil, errors.New("usecase: turn writer must not be nil")
	}
	if deps.Policies == nil {
		return nil, errors.New("usecase: policy provider must not be nil")
	}
	if cfg.Moderation && deps.Moderator == nil {
		return nil, errors.New("usecase: moderation enabled without a moderator")
	}
	if strings.TrimSpace(cfg.Params.Model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.NewPhraseClassifier(intent.DefaultRules()...)
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessageLen
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationService{
		deps:  deps,
		cfg:   cfg,
		log:   logger,
		locks: newKeyedMutex(),
	}, nil
}

// ProcessTurn handles one inbound customer message.
//
// External calls run detached from ctx and are bounded by their own
// timeouts. Cancelling ctx before the completion starts aborts the turn;
// after that the turn runs to the end so no partial turn is written.
func (s *ConversationService) ProcessTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	policyNumber := strings.TrimSpace(in.PolicyNumber)
	message := strings.TrimSpace(in.Message)
	logger := s.log.With("policy_number", policyNumber, "correlation_id", in.CorrelationID)

	if policyNumber == "" {
		return TurnOutput{}, s.fail(logger, OutcomeInvalidInput, newError(ErrorInvalidInput, "empty_policy_number", nil))
	}
	if message == "" {
		return TurnOutput{}, s.fail(logger, OutcomeInvalidInput, newError(ErrorInvalidInput, "empty_message", nil))
	}
	if utf8.RuneCountInString(message) > s.cfg.MaxMessageLength {
		return TurnOutput{}, s.fail(logger, OutcomeInvalidInput, newError(ErrorInvalidInput, "message_too_long", nil))
	}

	if s.cfg.SerializeTurns {
		unlock := s.locks.Lock(policyNumber)
		defer unlock()
	}

	detached := context.WithoutCancel(ctx)

	if s.cfg.Moderation {
		flagged, err := call(detached, s, "moderation", s.cfg.Completion, func(ctx context.Context) (bool, error) {
			return s.deps.Moderator.Moderate(ctx, message)
		})
		if err != nil {
			return TurnOutput{}, s.fail(logger, OutcomeCompletionFailure, newError(ErrorCompletion, "moderation_error", err))
		}
		if flagged {
			return TurnOutput{}, s.fail(logger, OutcomeInvalidInput, newError(ErrorInvalidInput, "moderation_flagged", nil))
		}
	}

	// Retrieve
	history, err := call(detached, s, "memory_read", s.cfg.Store, func(ctx context.Context) ([]string, error) {
		return s.deps.Retriever.Retrieve(ctx, policyNumber)
	})
	if err != nil {
		return TurnOutput{}, s.fail(logger, OutcomeMemoryUnavailable, newError(ErrorMemoryUnavailable, "memory_retrieve_error", err))
	}

	// Enrich
	turn := domain.ConversationContext{PolicyNumber: policyNumber, Query: message, History: history}
	if s.deps.Classifier.Classify(message) == intent.ClaimInitiation {
		turn.PolicyData, err = s.policyData(detached, policyNumber)
		if err != nil {
			return TurnOutput{}, s.fail(logger, OutcomePolicyUnavailable, err.(*Error))
		}
	}

	// Assemble
	messages, err := s.deps.Assembler.Assemble(prompt.Input{
		History:      turn.History,
		Query:        turn.Query,
		PolicyNumber: turn.PolicyNumber,
		PolicyData:   turn.PolicyData,
	})
	if err != nil {
		return TurnOutput{}, s.fail(logger, OutcomeConfiguration, newError(ErrorConfiguration, "template_render_error", err))
	}

	if err := ctx.Err(); err != nil {
		return TurnOutput{}, s.fail(logger, OutcomeCancelled, newError(ErrorInternal, "request_cancelled", err))
	}

	// Complete
	response, err := call(detached, s, "completion", s.cfg.Completion, func(ctx context.Context) (string, error) {
		out, err := s.deps.Completer.Complete(ctx, messages, s.cfg.Params)
		if err != nil && !retryableCompletion(err) {
			return "", retry.Permanent(err)
		}
		return out, err
	})
	if err != nil {
		reason := "completion_error"
		if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
			reason = "completion_rate_limited"
		}
		return TurnOutput{}, s.fail(logger, OutcomeCompletionFailure, newError(ErrorCompletion, reason, err))
	}
	reply := cleanReply(response)
	if reply == "" {
		return TurnOutput{}, s.fail(logger, OutcomeCompletionFailure, newError(ErrorCompletion, "completion_empty", nil))
	}

	// Persist
	_, err = call(detached, s, "memory_write", s.cfg.Persist, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.deps.Writer.Append(ctx, policyNumber, message, response)
	})
	if err != nil {
		logger.Warn("turn not persisted", "outcome", OutcomePersistenceWarning, "err", err)
		s.deps.Metrics.ObservePersistenceWarning()
		s.deps.Metrics.ObserveTurn(OutcomePersistenceWarning)
		return TurnOutput{AIMessage: reply, Persisted: false}, nil
	}

	logger.Info("turn completed", "outcome", OutcomeSuccess, "history_items", len(history), "policy_data", turn.PolicyData != "")
	s.deps.Metrics.ObserveTurn(OutcomeSuccess)
	return TurnOutput{AIMessage: reply, Persisted: true}, nil
}

// policyData fetches the policy record and renders it for the prompt.
func (s *ConversationService) policyData(ctx context.Context, policyNumber string) (string, error) {
	info, err := call(ctx, s, "policy_lookup", s.cfg.Policy, func(ctx context.Context) (*domain.PolicyInformation, error) {
		info, err := s.deps.Policies.GetPolicyInformation(ctx, policyNumber)
		if errors.Is(err, policystore.ErrPolicyNotFound) {
			return nil, retry.Permanent(err)
		}
		return info, err
	})
	if err != nil {
		if errors.Is(err, policystore.ErrPolicyNotFound) {
			return "", newError(ErrorPolicyUnavailable, "policy_not_found", err)
		}
		return "", newError(ErrorPolicyUnavailable, "policy_lookup_error", err)
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return "", newError(ErrorInternal, "policy_encode_error", err)
	}
	return string(raw), nil
}

func (s *ConversationService) fail(logger *slog.Logger, outcome string, err *Error) error {
	level := slog.LevelError
	if err.Code == ErrorInvalidInput {
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, "turn failed", "outcome", outcome, "reason", err.Reason, "err", err.Err)
	s.deps.Metrics.ObserveTurn(outcome)
	return err
}

// call runs op under p and records its latency against collaborator.
func call[T any](ctx context.Context, s *ConversationService, collaborator string, p retry.Policy, op func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := retry.Do(ctx, p, op)
	s.deps.Metrics.ObserveCall(collaborator, start, err)
	return out, err
}

// retryableCompletion keeps client errors other than rate limiting from
// being retried.
func retryableCompletion(err error) bool {
	status, ok := upstreamStatusCode(err)
	if !ok {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

// cleanReply strips markdown bold markers the chat front end does not render.
func cleanReply(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "**", ""))
}
