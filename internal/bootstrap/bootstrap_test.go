package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"

	"claims-agent/internal/config"
)

type fakeSSM struct {
	values map[string]string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *awsssm.GetParameterInput, _ ...func(*awsssm.Options)) (*awsssm.GetParameterOutput, error) {
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &awsssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: &v}}, nil
}

type fakeDynamo struct{}

func (fakeDynamo) PutItem(context.Context, *awsdynamodb.PutItemInput, ...func(*awsdynamodb.Options)) (*awsdynamodb.PutItemOutput, error) {
	return nil, errors.New("unexpected PutItem")
}

func (fakeDynamo) Query(context.Context, *awsdynamodb.QueryInput, ...func(*awsdynamodb.Options)) (*awsdynamodb.QueryOutput, error) {
	return nil, errors.New("unexpected Query")
}

func (fakeDynamo) GetItem(_ context.Context, in *awsdynamodb.GetItemInput, _ ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error) {
	pn := in.Key["policyNumber"].(*types.AttributeValueMemberS).Value
	return &awsdynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"policyNumber":     &types.AttributeValueMemberS{Value: pn},
		"policyHolderName": &types.AttributeValueMemberS{Value: "Sam Ayo"},
		"policyStartDate":  &types.AttributeValueMemberS{Value: "2025-01-01"},
		"policyEndDate":    &types.AttributeValueMemberS{Value: "2026-01-01"},
		"premiumAmount":    &types.AttributeValueMemberN{Value: "1200.50"},
		"coverageDetails":  &types.AttributeValueMemberS{Value: "Comprehensive"},
	}}, nil
}

// llmServer records the request bodies it receives.
type llmServer struct {
	mu      sync.Mutex
	bodies  []string
	server  *httptest.Server
	replies int
}

func newLLMServer(t *testing.T) *llmServer {
	t.Helper()
	l := &llmServer{}
	l.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, string(body))
		l.replies++
		n := l.replies
		l.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": "**Reply** " + string(rune('0'+n))}}},
		})
	}))
	t.Cleanup(l.server.Close)
	return l
}

func (l *llmServer) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bodies[len(l.bodies)-1]
}

func testConfig(t *testing.T, llmURL string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{
		"PARAM_PREFIX":   "/claims-agent",
		"POLICY_TABLE":   "policies",
		"MEMORY_BACKEND": "memory",
		"UPLOAD_DIR":     filepath.Join(t.TempDir(), "uploads"),
		"LLM_BASE_URL":   llmURL,
		"RETRY_BACKOFF":  "1ms",
	})
	require.NoError(t, err)
	return cfg
}

func testClients() Clients {
	return Clients{
		DynamoDB: fakeDynamo{},
		SSM: &fakeSSM{values: map[string]string{
			"/claims-agent/x-api-key":     "key-123",
			"/claims-agent/llm-api-token": `{"token":"sk-test"}`,
		}},
	}
}

func post(t *testing.T, app *App, path, contentType, body string) events.APIGatewayProxyResponse {
	t.Helper()
	resp, err := app.Handler.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       path,
		Headers:    map[string]string{"Content-Type": contentType, "X-API-KEY": "key-123"},
		Body:       body,
	})
	require.NoError(t, err)
	return resp
}

func TestNew_EndToEndConversation(t *testing.T) {
	llm := newLLMServer(t)
	cfg := testConfig(t, llm.server.URL)

	app, err := New(context.Background(), cfg, testClients(), nil)
	require.NoError(t, err)
	defer app.Close()

	resp := post(t, app, "/api/v1/process-claim", "application/json", `{"policyNumber":"P-100","message":"Hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	require.JSONEq(t, `{"status":200,"aiMessage":"Reply 1"}`, resp.Body)
	require.Contains(t, llm.last(), `"model":"openai/gpt-5-chat-latest"`)
	require.NotContains(t, llm.last(), "Sam Ayo")

	resp = post(t, app, "/api/v1/process-claim", "application/json", `{"policyNumber":"P-100","message":"I want to make a claim"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	require.Contains(t, llm.last(), "Sam Ayo")
	require.Contains(t, llm.last(), "Customer: Hello")
}

func TestNew_UploadFeedsNextTurn(t *testing.T) {
	llm := newLLMServer(t)
	cfg := testConfig(t, llm.server.URL)

	app, err := New(context.Background(), cfg, testClients(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "P-100riaˆstatement.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("The other car hit my rear bumper.\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp := post(t, app, "/api/v1/claims/uploads", w.FormDataContentType(), buf.String())
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	stored := filepath.Join(cfg.UploadDir, "claims", "P-100", "statement.txt")
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "The other car"))

	resp = post(t, app, "/api/v1/process-claim", "application/json", `{"policyNumber":"P-100","message":"What next?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	require.Contains(t, llm.last(), "I have just successfully uploaded a document")
}

func TestNew_RejectsWrongAPIKey(t *testing.T) {
	llm := newLLMServer(t)
	app, err := New(context.Background(), testConfig(t, llm.server.URL), testClients(), nil)
	require.NoError(t, err)

	resp, err := app.Handler.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/v1/process-claim",
		Headers:    map[string]string{"X-API-KEY": "nope"},
		Body:       `{"policyNumber":"P-100","message":"Hello"}`,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNew_StartupFailures(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	clients := testClients()
	clients.SSM = &fakeSSM{values: map[string]string{}}
	_, err := New(context.Background(), cfg, clients, nil)
	require.ErrorContains(t, err, "api key")

	bucketCfg := *cfg
	bucketCfg.DocumentsBucket = "claim-docs"
	_, err = New(context.Background(), &bucketCfg, testClients(), nil)
	require.ErrorContains(t, err, "s3")

	badTpl := *cfg
	badTpl.PromptTemplatePath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(context.Background(), &badTpl, testClients(), nil)
	require.ErrorContains(t, err, "templates")

	_, err = New(context.Background(), nil, testClients(), nil)
	require.Error(t, err)
}
