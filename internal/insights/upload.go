package insights

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ConfabulousDev/confab-insights/internal/archive"
	"github.com/ConfabulousDev/confab-insights/internal/logger"
	"github.com/ConfabulousDev/confab-insights/internal/transcript"
)

// Accepted upload media types.
const (
	MediaTypeJSON          = "application/json"
	MediaTypeZip           = "application/zip"
	MediaTypeZipCompressed = "application/x-zip-compressed"
	MediaTypePDF           = "application/pdf"
)

var acceptedMediaTypes = map[string]string{
	MediaTypeJSON:          "export.json",
	MediaTypeZip:           "export.zip",
	MediaTypeZipCompressed: "export.zip",
	MediaTypePDF:           "export.pdf",
}

const maxFilenameLen = 128

// UploadRequest is one uploaded artifact.
type UploadRequest struct {
	ContentType string // As declared by the client; parameters are ignored
	Filename    string // Optional; sanitized into the key
	Data        []byte
}

// UploadResult identifies a stored upload.
type UploadResult struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Upload validates and stores an export under a fresh key. Nothing is written
// unless validation passes.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "insights.upload",
		trace.WithAttributes(
			attribute.String("upload.content_type", req.ContentType),
			attribute.Int("upload.size", len(req.Data)),
		))
	defer span.End()

	result, err := s.upload(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("export.key", result.Key))
	logger.Ctx(ctx).Info("export stored",
		"key", result.Key,
		"content_type", result.ContentType,
		"size", humanize.Bytes(uint64(result.Size)))
	return result, nil
}

func (s *Service) upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	mediaType, err := ParseMediaType(req.ContentType)
	if err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrValidation)
	}
	if err := validateUpload(mediaType, req.Data); err != nil {
		return nil, err
	}

	filename := sanitizeFilename(req.Filename, acceptedMediaTypes[mediaType])
	key := s.cfg.KeyPrefix + uuid.NewString() + "/" + filename

	putCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	if err := s.store.Put(putCtx, key, req.Data, mediaType); err != nil {
		return nil, fmt.Errorf("%w: write %q: %w", ErrStorage, key, err)
	}

	return &UploadResult{
		Key:         key,
		Filename:    filename,
		ContentType: mediaType,
		Size:        int64(len(req.Data)),
	}, nil
}

// ParseMediaType returns the bare, lower-cased media type if it is accepted
// for upload, or ErrUnsupportedMediaType.
func ParseMediaType(contentType string) (string, error) {
	if contentType == "" {
		return "", fmt.Errorf("%w: missing content type", ErrUnsupportedMediaType)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
	if _, ok := acceptedMediaTypes[mediaType]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
	return mediaType, nil
}

func validateUpload(mediaType string, data []byte) error {
	switch mediaType {
	case MediaTypeJSON:
		if _, err := transcript.ParseExport(data); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	case MediaTypeZip, MediaTypeZipCompressed:
		if err := archive.Validate(data); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	case MediaTypePDF:
		if sniff(data) != formatPDF {
			return fmt.Errorf("%w: body is not a PDF document", ErrValidation)
		}
	default:
		return errors.New("unreachable media type " + mediaType)
	}
	return nil
}

// sanitizeFilename reduces a client-supplied name to a safe single path
// segment, falling back to def.
func sanitizeFilename(name, def string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))

	var sb strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	clean := strings.Trim(sb.String(), "._")
	if clean == "" || strings.Contains(clean, "..") {
		return def
	}
	if len(clean) > maxFilenameLen {
		clean = clean[len(clean)-maxFilenameLen:]
	}
	return clean
}
