package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"

	"claims-agent/internal/observability"
	"claims-agent/internal/retry"
)

const (
	// MaxDocumentBytes is the largest document accepted when DocumentConfig
	// sets no smaller limit.
	MaxDocumentBytes = 10 << 20

	// filenameDelimiter separates the policy number from the file name in
	// names produced by the chat front end.
	filenameDelimiter = "riaˆ"

	uploadedQuery    = "I have just successfully uploaded a document"
	uploadedResponse = "Alright! Document has been received, time to proceed to next step."
)

// allowedTypes maps each accepted extension to the sniffed MIME types that
// may back it. Legacy Word files sniff as generic OLE storage and some
// .docx writers produce archives mimetype only recognises as zip.
var allowedTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".doc":  {"application/msword", "application/x-ole-storage"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".txt":  {"text/plain"},
}

type DocumentSink interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type DocumentConfig struct {
	Store   retry.Policy
	Persist retry.Policy
	// MaxBytes caps the document size; zero or anything above
	// MaxDocumentBytes means MaxDocumentBytes.
	MaxBytes int
}

// DocumentService stores claim documents and records the upload in the
// policy's conversation so the next turn can move on.
type DocumentService struct {
	sink    DocumentSink
	writer  TurnWriter
	cfg     DocumentConfig
	metrics *observability.Metrics
	log     *slog.Logger
}

type UploadInput struct {
	PolicyNumber  string
	Filename      string
	Data          []byte
	CorrelationID string
}

type UploadOutput struct {
	Filename    string
	Location    string
	ContentType string
	Persisted   bool
}

func NewDocumentService(sink DocumentSink, writer TurnWriter, cfg DocumentConfig, metrics *observability.Metrics, logger *slog.Logger) (*DocumentService, error) {
	if sink == nil {
		return nil, errors.New("usecase: document sink must not be nil")
	}
	if writer == nil {
		return nil, errors.New("usecase: turn writer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 || cfg.MaxBytes > MaxDocumentBytes {
		cfg.MaxBytes = MaxDocumentBytes
	}
	return &DocumentService{sink: sink, writer: writer, cfg: cfg, metrics: metrics, log: logger}, nil
}

func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (UploadOutput, error) {
	policyNumber, filename := splitUploadName(in.PolicyNumber, in.Filename)
	logger := s.log.With("policy_number", policyNumber, "correlation_id", in.CorrelationID)

	if safeName(policyNumber) == "" {
		return s.reject(logger, "missing_policy_number")
	}
	if filename == "" {
		return s.reject(logger, "invalid_filename")
	}
	if len(in.Data) == 0 {
		return s.reject(logger, "empty_file")
	}
	if len(in.Data) > s.cfg.MaxBytes {
		return s.reject(logger, "file_too_large")
	}
	ext := strings.ToLower(path.Ext(filename))
	accepted, ok := allowedTypes[ext]
	if !ok {
		return s.reject(logger, "unsupported_extension")
	}
	mtype := mimetype.Detect(in.Data)
	if !mtype.Is(accepted[0]) && !isAny(mtype, accepted[1:]) {
		logger.Info("document rejected", "reason", "unsupported_mime_type", "mime", mtype.String(), "ext", ext)
		s.metrics.ObserveUpload("rejected")
		return UploadOutput{}, newError(ErrorInvalidInput, "unsupported_mime_type", nil)
	}

	detached := context.WithoutCancel(ctx)
	key := path.Join("claims", safeName(policyNumber), filename)
	location, err := retry.Do(detached, s.cfg.Store, func(ctx context.Context) (string, error) {
		return s.sink.Put(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), mtype.String())
	})
	if err != nil {
		logger.Error("document not stored", "key", key, "err", err)
		s.metrics.ObserveUpload("failed")
		return UploadOutput{}, newError(ErrorStorage, "document_store_error", err)
	}

	out := UploadOutput{Filename: filename, Location: location, ContentType: mtype.String(), Persisted: true}
	err = retry.Run(detached, s.cfg.Persist, func(ctx context.Context) error {
		return s.writer.Append(ctx, policyNumber, uploadedQuery, uploadedResponse)
	})
	if err != nil {
		logger.Warn("upload turn not persisted", "outcome", OutcomePersistenceWarning, "err", err)
		s.metrics.ObservePersistenceWarning()
		out.Persisted = false
	}

	logger.Info("document stored", "key", key, "bytes", len(in.Data), "mime", mtype.String())
	s.metrics.ObserveUpload("stored")
	return out, nil
}

func (s *DocumentService) reject(logger *slog.Logger, reason string) (UploadOutput, error) {
	logger.Info("document rejected", "reason", reason)
	s.metrics.ObserveUpload("rejected")
	return UploadOutput{}, newError(ErrorInvalidInput, reason, nil)
}

// splitUploadName resolves the policy number and the sanitised file name. An
// explicit policy number wins; otherwise it is read from the name prefix.
func splitUploadName(policyNumber, filename string) (string, string) {
	filename = path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	prefix, rest, found := strings.Cut(filename, filenameDelimiter)
	if found {
		filename = rest
	}
	policyNumber = strings.TrimSpace(policyNumber)
	if policyNumber == "" && found {
		policyNumber = strings.TrimSpace(prefix)
	}
	return policyNumber, strings.TrimLeft(safeName(filename), ".")
}

// safeName keeps letters, digits and "._-".
func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-", r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAny(m *mimetype.MIME, types []string) bool {
	for _, t := range types {
		if m.Is(t) {
			return true
		}
	}
	return false
}
