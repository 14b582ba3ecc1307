package handler

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"claims-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerAPIKey        = "X-Api-Key"
	headerPersisted     = "X-Turn-Persisted"

	errorNotFound         = "NOT_FOUND"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"

	// multipart framing on top of the document limit
	maxUploadBody = usecase.MaxDocumentBytes + 1<<20
)

type TurnProcessor interface {
	ProcessTurn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

type CustomerVerifier interface {
	Verify(ctx context.Context, in usecase.VerifyInput) (usecase.VerifyOutput, error)
}

type DocumentUploader interface {
	Upload(ctx context.Context, in usecase.UploadInput) (usecase.UploadOutput, error)
}

// Config holds the routing and authentication settings.
type Config struct {
	APIPrefix string
	APIKey    string
}

// Handler serves API Gateway proxy events.
type Handler struct {
	turns     TurnProcessor
	customers CustomerVerifier
	documents DocumentUploader
	prefix    string
	apiKey    string
	log       *slog.Logger
}

type verifyRequest struct {
	PolicyNumber string `json:"policyNumber"`
	Password     string `json:"password"`
}

type verifyResponse struct {
	Status       int    `json:"status"`
	Token        string `json:"token"`
	PolicyNumber string `json:"policyNumber"`
	Message      string `json:"message"`
}

type claimRequest struct {
	PolicyNumber string `json:"policyNumber"`
	Message      string `json:"message"`
}

type claimResponse struct {
	Status    int    `json:"status"`
	AIMessage string `json:"aiMessage"`
}

type uploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewHandler(turns TurnProcessor, customers CustomerVerifier, documents DocumentUploader, cfg Config, logger *slog.Logger) (*Handler, error) {
	if turns == nil {
		return nil, errors.New("handler: turn processor must not be nil")
	}
	if customers == nil {
		return nil, errors.New("handler: customer verifier must not be nil")
	}
	if documents == nil {
		return nil, errors.New("handler: document uploader must not be nil")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("handler: api key must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(cfg.APIPrefix), "/")
	if prefix == "/" {
		prefix = ""
	}
	return &Handler{
		turns:     turns,
		customers: customers,
		documents: documents,
		prefix:    prefix,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		log:       logger,
	}, nil
}

// Handle routes one proxy event. Failures are reported in the response; the
// returned error is always nil.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.log.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)

	resp := h.route(ctx, req, correlationID, logger)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[headerCorrelationID] = correlationID
	logger.Debug("request handled", "status", resp.StatusCode)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string, logger *slog.Logger) events.APIGatewayProxyResponse {
	path := "/" + strings.Trim(req.Path, "/")

	switch path {
	case "/":
		return h.liveness(req, "pong")
	case "/health":
		return h.liveness(req, "healthy")
	}

	if h.prefix != "" && !strings.HasPrefix(path, h.prefix+"/") {
		return errorJSON(http.StatusNotFound, errorNotFound, "route not found")
	}
	route := strings.TrimPrefix(path, h.prefix)

	var serve func(context.Context, events.APIGatewayProxyRequest, string, *slog.Logger) events.APIGatewayProxyResponse
	switch route {
	case "/verify-customer":
		serve = h.verifyCustomer
	case "/process-claim":
		serve = h.processClaim
	case "/claims/uploads":
		serve = h.uploadDocument
	default:
		return errorJSON(http.StatusNotFound, errorNotFound, "route not found")
	}
	if req.HTTPMethod != http.MethodPost {
		return errorJSON(http.StatusMethodNotAllowed, errorMethodNotAllowed, "method not allowed")
	}
	if !h.authorized(req) {
		logger.Info("request rejected", "reason", "invalid_api_key")
		return errorJSON(http.StatusUnauthorized, string(usecase.ErrorUnauthorized), "Unauthorized access: Invalid API key")
	}
	return serve(ctx, req, correlationID, logger)
}

func (h *Handler) liveness(req events.APIGatewayProxyRequest, body string) events.APIGatewayProxyResponse {
	if req.HTTPMethod != http.MethodGet {
		return errorJSON(http.StatusMethodNotAllowed, errorMethodNotAllowed, "method not allowed")
	}
	return jsonResponse(http.StatusOK, body)
}

func (h *Handler) verifyCustomer(ctx context.Context, req events.APIGatewayProxyRequest, _ string, logger *slog.Logger) events.APIGatewayProxyResponse {
	var in verifyRequest
	if err := decodeJSON(req, &in); err != nil {
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid request body")
	}
	out, err := h.customers.Verify(ctx, usecase.VerifyInput{PolicyNumber: in.PolicyNumber, Password: in.Password})
	if err != nil {
		return mapError(err, logger)
	}
	return jsonResponse(http.StatusOK, verifyResponse{
		Status:       http.StatusOK,
		Token:        out.Token,
		PolicyNumber: out.PolicyNumber,
		Message:      "success!",
	})
}

func (h *Handler) processClaim(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string, logger *slog.Logger) events.APIGatewayProxyResponse {
	var in claimRequest
	if err := decodeJSON(req, &in); err != nil {
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid request body")
	}
	out, err := h.turns.ProcessTurn(ctx, usecase.TurnInput{
		PolicyNumber:  in.PolicyNumber,
		Message:       in.Message,
		CorrelationID: correlationID,
	})
	if err != nil {
		return mapError(err, logger)
	}
	resp := jsonResponse(http.StatusOK, claimResponse{Status: http.StatusOK, AIMessage: out.AIMessage})
	resp.Headers[headerPersisted] = strconv.FormatBool(out.Persisted)
	return resp
}

func (h *Handler) uploadDocument(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string, logger *slog.Logger) events.APIGatewayProxyResponse {
	form, err := readUpload(req)
	if err != nil {
		logger.Info("upload rejected", "reason", "malformed_multipart", "err", err)
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), err.Error())
	}
	out, err := h.documents.Upload(ctx, usecase.UploadInput{
		PolicyNumber:  form.policyNumber,
		Filename:      form.filename,
		Data:          form.data,
		CorrelationID: correlationID,
	})
	if err != nil {
		return mapError(err, logger)
	}
	resp := jsonResponse(http.StatusCreated, uploadResponse{
		Message:  "File uploaded successfully",
		Filename: out.Filename,
		URL:      out.Location,
	})
	resp.Headers[headerPersisted] = strconv.FormatBool(out.Persisted)
	return resp
}

func (h *Handler) authorized(req events.APIGatewayProxyRequest) bool {
	got := headerValue(req, headerAPIKey)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) == 1
}

type uploadForm struct {
	policyNumber string
	filename     string
	data         []byte
}

// readUpload extracts the "file" part and the optional "policyNumber" field.
func readUpload(req events.APIGatewayProxyRequest) (uploadForm, error) {
	mediaType, params, err := mime.ParseMediaType(headerValue(req, "Content-Type"))
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		return uploadForm{}, errors.New("expected multipart/form-data with a boundary")
	}
	body, err := requestBody(req)
	if err != nil {
		return uploadForm{}, err
	}
	if len(body) > maxUploadBody {
		return uploadForm{}, errors.New("request body too large")
	}

	var form uploadForm
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return uploadForm{}, fmt.Errorf("read multipart: %w", err)
		}
		switch part.FormName() {
		case "file":
			if form.data != nil {
				part.Close()
				return uploadForm{}, errors.New("only one file per request")
			}
			form.filename = part.FileName()
			form.data, err = io.ReadAll(io.LimitReader(part, usecase.MaxDocumentBytes+1))
		case "policyNumber":
			var v []byte
			v, err = io.ReadAll(io.LimitReader(part, 256))
			form.policyNumber = strings.TrimSpace(string(v))
		}
		part.Close()
		if err != nil {
			return uploadForm{}, fmt.Errorf("read multipart: %w", err)
		}
	}
	if form.data == nil {
		return uploadForm{}, errors.New("missing file part")
	}
	return form, nil
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, errors.New("invalid base64 body")
	}
	return b, nil
}

func decodeJSON(req events.APIGatewayProxyRequest, v any) error {
	body, err := requestBody(req)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

// headerValue looks a header up case-insensitively in both header maps.
func headerValue(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}

func mapError(err error, logger *slog.Logger) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logger.Error("unexpected error", "err", err)
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "internal error")
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return errorJSON(http.StatusBadRequest, string(ucErr.Code), ucErr.Reason)
	case usecase.ErrorUnauthorized:
		return errorJSON(http.StatusUnauthorized, string(ucErr.Code), ucErr.Reason)
	default:
		return errorJSON(http.StatusInternalServerError, string(ucErr.Code), "the request could not be completed")
	}
}

func errorJSON(status int, code, message string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorResponse{Error: code, Message: message})
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR","message":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
