package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/clock"
	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/model"
)

// Sentinel errors for media uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Allowed image MIME types for answer uploads.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// MediaService stores uploaded answer images on local disk.
type MediaService struct {
	cfg *config.Config
	clk clock.Clock
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config, clk clock.Clock) *MediaService {
	return &MediaService{cfg: cfg, clk: clk}
}

// SaveAnswerImage saves an uploaded image under a UUID name and returns the
// answer payload recorded against the question.
func (s *MediaService) SaveAnswerImage(file multipart.File, header *multipart.FileHeader) (*model.ImageAnswer, error) {
	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedMIMETypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}

	if header.Size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	filename := uuid.New().String() + ext
	destPath := filepath.Join(s.cfg.UploadDir, filename)

	dst, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	return &model.ImageAnswer{
		Kind:         "image",
		Path:         "/uploads/" + filename,
		OriginalName: header.Filename,
		Mimetype:     contentType,
		Size:         header.Size,
		UploadedAt:   s.clk.Now(),
	}, nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	return types
}
