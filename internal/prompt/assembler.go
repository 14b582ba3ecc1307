// Package prompt builds the model-ready message sequence for one turn from
// the static templates, the retrieved history and the current inputs.
package prompt

import (
	"strings"

	"claims-agent/internal/domain"
)

const (
	PlaceholderHistory      = "chat_history"
	PlaceholderQuery        = "query"
	PlaceholderPolicyNumber = "policy_number"
	PlaceholderPolicyData   = "policy_data"
)

// Input carries the per-turn values substituted into the templates.
type Input struct {
	History      []string
	Query        string
	PolicyNumber string
	PolicyData   string
}

type Assembler struct {
	tpl Templates
}

// NewAssembler validates both templates with a dry render so a bad template
// fails at start-up instead of on the first customer message.
func NewAssembler(tpl Templates) (*Assembler, error) {
	a := &Assembler{tpl: tpl}
	if _, err := a.Assemble(Input{}); err != nil {
		return nil, err
	}
	return a, nil
}

// Assemble returns exactly two messages: the rendered instruction as the
// system message followed by the rendered user message.
func (a *Assembler) Assemble(in Input) ([]domain.ChatMessage, error) {
	system, err := render("system", a.tpl.System, map[string]string{
		PlaceholderHistory: formatHistory(in.History),
	})
	if err != nil {
		return nil, err
	}
	user, err := render("user", a.tpl.User, map[string]string{
		PlaceholderQuery:        in.Query,
		PlaceholderPolicyNumber: in.PolicyNumber,
		PlaceholderPolicyData:   in.PolicyData,
	})
	if err != nil {
		return nil, err
	}
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}, nil
}

// formatHistory labels the alternating query/response strings.
func formatHistory(history []string) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for i, h := range history {
		speaker := "Customer"
		if i%2 == 1 {
			speaker = "Assistant"
		}
		lines = append(lines, speaker+": "+strings.TrimSpace(h))
	}
	return strings.Join(lines, "\n")
}
