package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const tokenLength = 5

type VerifyInput struct {
	PolicyNumber string
	Password     string
}

type VerifyOutput struct {
	Token        string
	PolicyNumber string
}

// CustomerService issues the short session token the chat front end shows
// after login. Credentials are only checked for presence.
type CustomerService struct {
	log *slog.Logger
}

func NewCustomerService(logger *slog.Logger) *CustomerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomerService{log: logger}
}

func (s *CustomerService) Verify(_ context.Context, in VerifyInput) (VerifyOutput, error) {
	policyNumber := strings.TrimSpace(in.PolicyNumber)
	if policyNumber == "" {
		return VerifyOutput{}, newError(ErrorInvalidInput, "empty_policy_number", nil)
	}
	if in.Password == "" {
		return VerifyOutput{}, newError(ErrorInvalidInput, "empty_password", nil)
	}
	s.log.Info("customer verified", "policy_number", policyNumber)
	return VerifyOutput{Token: newToken(), PolicyNumber: policyNumber}, nil
}

var newToken = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}
