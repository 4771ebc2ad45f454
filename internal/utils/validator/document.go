package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// ErrInvalidDocument is wrapped by every validation failure
var ErrInvalidDocument = errors.New("invalid document")

// DocumentValidator decides whether a payload is a document the dispatcher accepts
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize int64
	// AllowedTypes maps a file extension to the MIME types accepted for it
	AllowedTypes map[string][]string
}

func DefaultValidatorConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 200 * 1024 * 1024,
		AllowedTypes: map[string][]string{
			".pdf": {"application/pdf"},
		},
	}
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// Err folds the validation errors into one error wrapping ErrInvalidDocument, or nil
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("%w %s: %s", ErrInvalidDocument, r.FileInfo.Filename, strings.Join(msgs, "; "))
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultValidatorConfig()
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

func (v *DocumentValidator) MaxFileSize() int64 {
	return v.config.MaxFileSize
}

// Validate checks size, extension and the detected content type of data
func (v *DocumentValidator) Validate(name string, data []byte) *ValidationResult {
	sum := sha256.Sum256(data)
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  name,
			Size:      int64(len(data)),
			Extension: strings.ToLower(filepath.Ext(name)),
			Hash:      hex.EncodeToString(sum[:]),
		},
	}

	result.Errors = append(result.Errors, v.performBasicValidation(result.FileInfo)...)

	mtype := mimetype.Detect(data)
	result.FileInfo.MimeType = mtype.String()
	result.Errors = append(result.Errors, v.validateMimeType(result.FileInfo.Extension, mtype)...)

	if len(result.Errors) > 0 {
		result.IsValid = false
		v.logger.Debug("Document rejected",
			logger.String("filename", name),
			logger.String("mimeType", result.FileInfo.MimeType),
			logger.Int("errors", len(result.Errors)),
		)
	}
	return result
}

// ValidateFile reads and validates an uploaded file, returning its content
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, []byte, error) {
	if v.config.MaxFileSize > 0 && file.Size > v.config.MaxFileSize {
		return &ValidationResult{
			Errors: []ValidationError{tooLarge(v.config.MaxFileSize)},
			FileInfo: FileInfo{
				Filename:  file.Filename,
				Size:      file.Size,
				Extension: strings.ToLower(filepath.Ext(file.Filename)),
			},
		}, nil, nil
	}

	f, err := file.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	return v.Validate(file.Filename, data), data, nil
}

func tooLarge(limit int64) ValidationError {
	return ValidationError{
		Code:    "FILE_TOO_LARGE",
		Message: fmt.Sprintf("file size exceeds maximum limit of %d bytes", limit),
		Field:   "size",
	}
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError

	if v.config.MaxFileSize > 0 && info.Size > v.config.MaxFileSize {
		errs = append(errs, tooLarge(v.config.MaxFileSize))
	}
	if info.Size == 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "file is empty",
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("file type %q is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) validateMimeType(ext string, mtype *mimetype.MIME) []ValidationError {
	allowed, ok := v.config.AllowedTypes[ext]
	if !ok {
		return nil
	}
	for _, m := range allowed {
		if mtype.Is(m) {
			return nil
		}
	}
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("content type %s does not match extension %s", mtype.String(), ext),
		Field:   "mimeType",
	}}
}
