package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"claims-agent/internal/domain"
)

func mustDefaultAssembler(t *testing.T) *Assembler {
	t.Helper()
	tpl, err := Default()
	require.NoError(t, err)
	a, err := NewAssembler(tpl)
	require.NoError(t, err)
	return a
}

func TestDefault_LoadsEmbeddedTemplates(t *testing.T) {
	tpl, err := Default()
	require.NoError(t, err)
	require.Contains(t, tpl.System, "{chat_history}")
	require.Contains(t, tpl.User, "{query}")
	require.Contains(t, tpl.User, "{policy_number}")
	require.Contains(t, tpl.User, "{policy_data}")
}

func TestParse_MissingKeys(t *testing.T) {
	_, err := Parse([]byte("USERPROMPT: hi {query}\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "SYSTEMPROMPT")

	_, err = Parse([]byte("SYSTEMPROMPT: be nice\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "USERPROMPT")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("SYSTEMPROMPT: [unclosed\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode templates")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SYSTEMPROMPT: sys {chat_history}\nUSERPROMPT: usr {query}\n"), 0o600))

	tpl, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "sys {chat_history}", tpl.System)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read templates")

	tpl, err = LoadFile("")
	require.NoError(t, err)
	require.NotEmpty(t, tpl.System)
}

func TestNewAssembler_RejectsUnknownPlaceholder(t *testing.T) {
	_, err := NewAssembler(Templates{System: "history: {chat_history} {query}", User: "{query}"})
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	require.Equal(t, "system", renderErr.Template)
	require.Equal(t, "query", renderErr.Placeholder)
}

func TestAssemble_ProducesSystemThenUser(t *testing.T) {
	a := mustDefaultAssembler(t)
	msgs, err := a.Assemble(Input{
		History:      []string{"Hello", "Hi, how can I help?"},
		Query:        "I want to make a claim",
		PolicyNumber: "P-100",
		PolicyData:   `{"policy_holder_name":"Sam Ayo"}`,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.RoleSystem, msgs[0].Role)
	require.Equal(t, domain.RoleUser, msgs[1].Role)
	require.Contains(t, msgs[0].Content, "Customer: Hello\nAssistant: Hi, how can I help?")
	require.Contains(t, msgs[1].Content, "Policy number: P-100")
	require.Contains(t, msgs[1].Content, `"policy_holder_name":"Sam Ayo"`)
	require.Contains(t, msgs[1].Content, "I want to make a claim")
	require.NotContains(t, msgs[0].Content, "{chat_history}")
}

func TestAssemble_EmptyPolicyDataAndHistory(t *testing.T) {
	a, err := NewAssembler(Templates{System: "H[{chat_history}]", User: "Q[{query}] P[{policy_number}] D[{policy_data}]"})
	require.NoError(t, err)
	msgs, err := a.Assemble(Input{Query: "Hello", PolicyNumber: "P-100"})
	require.NoError(t, err)
	require.Equal(t, "H[]", msgs[0].Content)
	require.Equal(t, "Q[Hello] P[P-100] D[]", msgs[1].Content)
}

func TestRender_EscapedBraces(t *testing.T) {
	out, err := render("user", `reply as {{"answer": "{query}"}}`, map[string]string{"query": "x"})
	require.NoError(t, err)
	require.Equal(t, `reply as {"answer": "x"}`, out)
}

func TestRender_Malformed(t *testing.T) {
	_, err := render("user", "open {query", map[string]string{"query": "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated")

	_, err = render("user", "stray } brace", nil)
	require.Error(t, err)
}

func TestFormatHistory(t *testing.T) {
	require.Equal(t, "", formatHistory(nil))
	require.Equal(t, "Customer: a\nAssistant: b\nCustomer: c", formatHistory([]string{"a", "b", " c "}))
}
