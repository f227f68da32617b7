package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/repository"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/export"
	"github.com/noah-isme/school-suite-api/pkg/jobs"
	"github.com/noah-isme/school-suite-api/pkg/storage"
)

// JobRenderDocument is the queue job type that draws a certificate PDF.
const JobRenderDocument = "documents.render"

const (
	codeGroupLength  = 4
	issueAttempts    = 3
	defaultCodeGroup = 3
)

type documentStore interface {
	List(ctx context.Context, filter models.DocumentFilter) ([]models.DocumentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.DocumentDetail, error)
	FindByCode(ctx context.Context, code string) (*models.DocumentDetail, error)
	Create(ctx context.Context, document *models.Document) error
	SetFilePath(ctx context.Context, id, path string) error
	Revoke(ctx context.Context, id, reason string, at time.Time) error
}

type blobStore interface {
	Save(relPath string, data []byte) (string, error)
	Read(relPath string) ([]byte, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) (string, error)
}

type certificateRenderer interface {
	Render(cert export.Certificate) ([]byte, error)
}

type downloadSigner interface {
	Sign(subject, relPath string) (string, time.Time, error)
	Verify(token string) (storage.SignedRef, error)
}

// IssueDocumentRequest describes a certificate to issue.
type IssueDocumentRequest struct {
	InstitutionID string `json:"institution_id" validate:"required"`
	StudentID     string `json:"student_id" validate:"required"`
	Type          string `json:"type" validate:"required,document_type"`
	Title         string `json:"title" validate:"max=200"`
	Body          string `json:"body" validate:"required,max=4000"`
}

// DownloadLink is a signed, expiring link to a rendered document.
type DownloadLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DownloadFile is the content served for a signed link.
type DownloadFile struct {
	Name string
	Data []byte
}

// DocumentServiceConfig carries issuing settings.
type DocumentServiceConfig struct {
	CodeGroups      int
	VerifyBaseURL   string
	DownloadBaseURL string
}

// DocumentService issues and verifies certificates.
type DocumentService struct {
	documents documentStore
	students  studentReader
	files     blobStore
	queue     jobEnqueuer
	renderer  certificateRenderer
	signer    downloadSigner
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DocumentServiceConfig
	now       func() time.Time
	newCode   func() (string, error)
}

// NewDocumentService builds the issuer. queue may be nil, in which case rendering runs inline.
func NewDocumentService(documents documentStore, students studentReader, files blobStore, queue jobEnqueuer, renderer certificateRenderer, signer downloadSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer()
	}
	if cfg.CodeGroups <= 0 {
		cfg.CodeGroups = defaultCodeGroup
	}
	s := &DocumentService{
		documents: documents,
		students:  students,
		files:     files,
		queue:     queue,
		renderer:  renderer,
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	s.newCode = func() (string, error) { return generateVerificationCode(s.cfg.CodeGroups) }
	return s
}

// RegisterJobs binds the render handler on q.
func (s *DocumentService) RegisterJobs(q *jobs.Queue) {
	q.Register(JobRenderDocument, func(ctx context.Context, job jobs.Job) error {
		id, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("render job %s: unexpected payload %T", job.ID, job.Payload)
		}
		return s.Render(ctx, id)
	})
}

// List returns issued documents.
func (s *DocumentService) List(ctx context.Context, filter models.DocumentFilter) ([]models.DocumentDetail, *models.Pagination, error) {
	items, total, err := s.documents.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list documents")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one document.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.DocumentDetail, error) {
	doc, err := s.documents.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "document not found", "failed to load document")
	}
	return doc, nil
}

// Issue persists a document under a fresh verification code and schedules its rendering.
func (s *DocumentService) Issue(ctx context.Context, req IssueDocumentRequest, issuedBy string) (*models.Document, error) {
	req.Type = strings.ToUpper(req.Type)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid document payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	if student.InstitutionID != req.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student belongs to another institution")
	}
	docType := models.DocumentType(req.Type)
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = docType.DefaultTitle()
	}
	doc := &models.Document{
		InstitutionID: req.InstitutionID,
		StudentID:     req.StudentID,
		Type:          docType,
		Title:         title,
		Body:          req.Body,
		Status:        models.DocumentStatusIssued,
		IssuedAt:      s.now().UTC(),
	}
	if issuedBy != "" {
		doc.IssuedBy = &issuedBy
	}

	for attempt := 1; ; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, internalError(err, "failed to generate verification code")
		}
		doc.ID = ""
		doc.VerificationCode = code
		err = s.documents.Create(ctx, doc)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateVerificationCode) && attempt < issueAttempts {
			s.logger.Warn("verification code collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, repository.ErrDuplicateVerificationCode) {
			s.logger.Error("verification code collisions exhausted retries", zap.Int("attempts", attempt))
			return nil, internalError(err, "failed to allocate verification code")
		}
		return nil, persistError(err, "failed to issue document", "document already exists")
	}

	s.metrics.RecordDocumentIssued(docType)
	s.scheduleRender(ctx, doc.ID)
	s.logger.Info("document issued", zap.String("document_id", doc.ID), zap.String("type", string(docType)))
	return doc, nil
}

func (s *DocumentService) scheduleRender(ctx context.Context, id string) {
	if s.queue != nil {
		_, err := s.queue.Enqueue(jobs.Job{Type: JobRenderDocument, Payload: id})
		if err == nil {
			return
		}
		s.logger.Warn("render queue unavailable, rendering inline", zap.String("document_id", id), zap.Error(err))
	}
	if err := s.Render(ctx, id); err != nil {
		s.logger.Error("inline render failed", zap.String("document_id", id), zap.Error(err))
	}
}

// Render draws the certificate PDF, stores it and records its path. Revoked documents are skipped.
func (s *DocumentService) Render(ctx context.Context, id string) error {
	err := s.render(ctx, id)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	s.metrics.RecordJob(JobRenderDocument, outcome)
	return err
}

func (s *DocumentService) render(ctx context.Context, id string) error {
	if s.files == nil {
		return errors.New("document storage not configured")
	}
	doc, err := s.documents.FindDetailByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load document %s: %w", id, err)
	}
	if doc.Status == models.DocumentStatusRevoked {
		return nil
	}
	var logo []byte
	if doc.InstitutionLogo != nil && *doc.InstitutionLogo != "" {
		if logo, err = s.files.Read(*doc.InstitutionLogo); err != nil {
			s.logger.Warn("institution logo unreadable, rendering without it", zap.String("document_id", id), zap.Error(err))
			logo = nil
		}
	}
	pdf, err := s.renderer.Render(export.Certificate{
		InstitutionName:  doc.InstitutionName,
		InstitutionLogo:  logo,
		Title:            doc.Title,
		StudentName:      doc.StudentName,
		StudentCode:      doc.StudentCode,
		Body:             doc.Body,
		IssuedAt:         doc.IssuedAt,
		VerificationCode: doc.VerificationCode,
		VerifyURL:        s.verifyURL(doc.VerificationCode),
	})
	if err != nil {
		return fmt.Errorf("render document %s: %w", id, err)
	}
	relPath := path.Join("documents", doc.InstitutionID, doc.ID+".pdf")
	if _, err := s.files.Save(relPath, pdf); err != nil {
		return fmt.Errorf("store document %s: %w", id, err)
	}
	if err := s.documents.SetFilePath(ctx, doc.ID, relPath); err != nil {
		return fmt.Errorf("record document path %s: %w", id, err)
	}
	return nil
}

// Verify answers the public verification query. Unknown codes are reported as invalid, not as errors.
func (s *DocumentService) Verify(ctx context.Context, code string) (*models.VerificationResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "code is required")
	}
	result := &models.VerificationResult{Code: code}
	doc, err := s.documents.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return nil, internalError(err, "failed to verify document")
	}
	issuedAt := doc.IssuedAt
	result.Valid = doc.Status == models.DocumentStatusIssued
	result.Status = doc.Status
	result.Type = doc.Type
	result.Title = doc.Title
	result.StudentName = doc.StudentName
	result.InstitutionName = doc.InstitutionName
	result.IssuedAt = &issuedAt
	result.RevokedAt = doc.RevokedAt
	return result, nil
}

// Revoke invalidates a document. A reason is mandatory.
func (s *DocumentService) Revoke(ctx context.Context, id, reason string) (*models.DocumentDetail, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "revoke reason is required")
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.DocumentStatusRevoked {
		return nil, appErrors.Clone(appErrors.ErrPolicy, "document already revoked")
	}
	at := s.now().UTC()
	if err := s.documents.Revoke(ctx, id, reason, at); err != nil {
		return nil, internalError(err, "failed to revoke document")
	}
	doc.Status = models.DocumentStatusRevoked
	doc.RevokedAt = &at
	doc.RevokeReason = &reason
	s.logger.Info("document revoked", zap.String("document_id", id))
	return doc, nil
}

// DownloadURL signs a short lived link to the rendered PDF.
func (s *DocumentService) DownloadURL(ctx context.Context, id string) (*DownloadLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "document downloads not configured")
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.DocumentStatusRevoked {
		return nil, appErrors.Clone(appErrors.ErrPolicy, "document is revoked")
	}
	if doc.FilePath == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "document is still rendering")
	}
	token, expiresAt, err := s.signer.Sign(doc.ID, *doc.FilePath)
	if err != nil {
		return nil, internalError(err, "failed to sign download link")
	}
	return &DownloadLink{
		Token:     token,
		URL:       strings.TrimRight(s.cfg.DownloadBaseURL, "/") + "?token=" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// OpenDownload resolves a signed token to the stored file.
func (s *DocumentService) OpenDownload(ctx context.Context, token string) (*DownloadFile, error) {
	if s.signer == nil || s.files == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "document downloads not configured")
	}
	ref, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	data, err := s.files.Read(ref.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document file not found")
		}
		return nil, internalError(err, "failed to read document file")
	}
	return &DownloadFile{Name: ref.Subject + ".pdf", Data: data}, nil
}

func (s *DocumentService) verifyURL(code string) string {
	if s.cfg.VerifyBaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.VerifyBaseURL, "/") + "/" + code
}

// generateVerificationCode returns groups of four upper-case base32 characters joined by dashes.
func generateVerificationCode(groups int) (string, error) {
	chars := groups * codeGroupLength
	buf := make([]byte, (chars*5+7)/8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)[:chars]
	parts := make([]string, groups)
	for i := range parts {
		parts[i] = encoded[i*codeGroupLength : (i+1)*codeGroupLength]
	}
	return strings.Join(parts, "-"), nil
}
