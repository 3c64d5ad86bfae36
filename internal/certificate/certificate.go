// Package certificate validates course certificates against the backend.
package certificate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cursala-gateway/internal/model"
)

// Validation errors.
var (
	ErrEmptyCode = errors.New("certificate: empty verification code")
	ErrNotFound  = errors.New("Certificado no válido o no encontrado")
)

// Forwarder sends a request through the legacy proxy route.
type Forwarder interface {
	Legacy(pr *model.ForwardRequest) (*model.Reply, error)
}

// Student is the certificate holder.
type Student struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	DNI       string `json:"dni,omitempty"`
}

// Course is the course the certificate was issued for.
type Course struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Duration    *int   `json:"duration,omitempty"`
}

// Teacher signs the certificate. It may be absent.
type Teacher struct {
	ID                       string `json:"_id"`
	FirstName                string `json:"firstName"`
	LastName                 string `json:"lastName"`
	Email                    string `json:"email"`
	ProfessionalDescription  string `json:"professionalDescription,omitempty"`
	ProfessionalSignatureURL string `json:"professionalSignatureUrl,omitempty"`
}

// Info records when and by whom the certificate was generated.
type Info struct {
	GeneratedAt   string `json:"generatedAt"`
	GeneratedBy   string `json:"generatedBy"`
	CertificateID string `json:"certificateId"`
}

// Certificate is the validation result returned by the backend.
type Certificate struct {
	IsValid         bool     `json:"isValid"`
	Student         Student  `json:"student"`
	Course          Course   `json:"course"`
	Teacher         *Teacher `json:"teacher"`
	CertificateInfo Info     `json:"certificateInfo"`
}

// Validator looks certificates up by verification code.
type Validator struct {
	fwd    Forwarder
	logger *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(fwd Forwarder, logger *slog.Logger) *Validator {
	return &Validator{
		fwd:    fwd,
		logger: logger.With("component", "certificate_validator"),
	}
}

// Validate fetches the certificate identified by code. A backend error
// status yields ErrNotFound.
func (v *Validator) Validate(ctx context.Context, code string) (*Certificate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	reply, err := v.fwd.Legacy(&model.ForwardRequest{
		Ctx:    ctx,
		Method: http.MethodGet,
		Path:   "/validate/" + url.PathEscape(code),
		Header: http.Header{"Content-Type": {"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("certificate: validate: %w", err)
	}
	defer func() { _ = reply.Body.Close() }()

	if reply.StatusCode < http.StatusOK || reply.StatusCode >= http.StatusMultipleChoices {
		v.logger.Info("certificate rejected", "status", reply.StatusCode)
		return nil, ErrNotFound
	}

	body, err := io.ReadAll(reply.Body)
	if err != nil {
		return nil, fmt.Errorf("certificate: read response: %w", err)
	}

	var envelope struct {
		Data *Certificate `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("certificate: decode response: %w", err)
	}
	if envelope.Data == nil {
		return nil, ErrNotFound
	}
	return envelope.Data, nil
}
