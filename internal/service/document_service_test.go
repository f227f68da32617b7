package service

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/repository"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/export"
	"github.com/noah-isme/school-suite-api/pkg/jobs"
	"github.com/noah-isme/school-suite-api/pkg/storage"
)

type memDocumentStore struct {
	docs       map[string]models.DocumentDetail
	collisions int
	creates    int
}

func (m *memDocumentStore) List(ctx context.Context, filter models.DocumentFilter) ([]models.DocumentDetail, int, error) {
	out := []models.DocumentDetail{}
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *memDocumentStore) FindDetailByID(ctx context.Context, id string) (*models.DocumentDetail, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m *memDocumentStore) FindByCode(ctx context.Context, code string) (*models.DocumentDetail, error) {
	for _, d := range m.docs {
		if d.VerificationCode == code {
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memDocumentStore) Create(ctx context.Context, doc *models.Document) error {
	m.creates++
	if m.collisions > 0 {
		m.collisions--
		return repository.ErrDuplicateVerificationCode
	}
	doc.ID = fmt.Sprintf("doc-%d", m.creates)
	m.docs[doc.ID] = models.DocumentDetail{Document: *doc, StudentName: "Quispe, Ana", StudentCode: "S-001", InstitutionName: "IE 101"}
	return nil
}

func (m *memDocumentStore) SetFilePath(ctx context.Context, id, path string) error {
	d := m.docs[id]
	d.FilePath = &path
	d.Rendered = true
	m.docs[id] = d
	return nil
}

func (m *memDocumentStore) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	d := m.docs[id]
	d.Status = models.DocumentStatusRevoked
	d.RevokedAt = &at
	d.RevokeReason = &reason
	m.docs[id] = d
	return nil
}

type stubRenderer struct{ last export.Certificate }

func (r *stubRenderer) Render(cert export.Certificate) ([]byte, error) {
	r.last = cert
	return []byte("%PDF-" + cert.VerificationCode), nil
}

type memFiles struct{ data map[string][]byte }

func (m *memFiles) Save(relPath string, data []byte) (string, error) {
	m.data[relPath] = data
	return "/srv/" + relPath, nil
}

func (m *memFiles) Read(relPath string) ([]byte, error) {
	d, ok := m.data[relPath]
	if !ok {
		return nil, fmt.Errorf("read file: %w", fs.ErrNotExist)
	}
	return d, nil
}

type documentFixture struct {
	svc      *DocumentService
	store    *memDocumentStore
	files    *memFiles
	renderer *stubRenderer
	metrics  *MetricsService
}

func newDocumentFixture(queue jobEnqueuer) *documentFixture {
	store := &memDocumentStore{docs: map[string]models.DocumentDetail{}}
	files := &memFiles{data: map[string][]byte{}}
	renderer := &stubRenderer{}
	metrics := NewMetricsService()
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := NewDocumentService(store, memStudents{store: seedSchool()}, files, queue, renderer, signer, metrics, nil, nil,
		DocumentServiceConfig{VerifyBaseURL: "https://school.example/verify/", DownloadBaseURL: "https://api.example/documents/download"})
	return &documentFixture{svc: svc, store: store, files: files, renderer: renderer, metrics: metrics}
}

func TestGenerateVerificationCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z2-7]{4}-[A-Z2-7]{4}-[A-Z2-7]{4}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := generateVerificationCode(3)
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Len(t, seen, 50)
}

func TestDocumentIssueRendersInline(t *testing.T) {
	f := newDocumentFixture(nil)
	ctx := context.Background()

	doc, err := f.svc.Issue(ctx, IssueDocumentRequest{InstitutionID: "inst-i", StudentID: "stu-s", Type: "study_certificate", Body: "Studied grade 3 in 2025."}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Certificate of Studies", doc.Title)
	assert.Equal(t, models.DocumentStatusIssued, doc.Status)

	stored := f.store.docs[doc.ID]
	require.NotNil(t, stored.FilePath)
	assert.Equal(t, "documents/inst-i/"+doc.ID+".pdf", *stored.FilePath)
	assert.Equal(t, []byte("%PDF-"+doc.VerificationCode), f.files.data[*stored.FilePath])
	assert.Equal(t, "https://school.example/verify/"+doc.VerificationCode, f.renderer.last.VerifyURL)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.documentsIssued.WithLabelValues("STUDY_CERTIFICATE")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.jobsProcessed.WithLabelValues(JobRenderDocument, OutcomeSuccess)))

	_, err = f.svc.Issue(ctx, IssueDocumentRequest{InstitutionID: "inst-j", StudentID: "stu-s", Type: "TRANSCRIPT", Body: "x"}, "")
	assertAppError(t, err, appErrors.ErrValidation, "student belongs to another institution")

	_, err = f.svc.Issue(ctx, IssueDocumentRequest{InstitutionID: "inst-i", StudentID: "stu-s", Type: "DIPLOMA", Body: "x"}, "")
	assertAppError(t, err, appErrors.ErrValidation, "invalid document payload")
}

func TestDocumentIssueRetriesCodeCollisions(t *testing.T) {
	f := newDocumentFixture(nil)
	f.store.collisions = 2
	doc, err := f.svc.Issue(context.Background(), IssueDocumentRequest{InstitutionID: "inst-i", StudentID: "stu-s", Type: "TRANSCRIPT", Body: "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.creates)
	assert.NotEmpty(t, doc.ID)

	f = newDocumentFixture(nil)
	f.store.collisions = 3
	_, err = f.svc.Issue(context.Background(), IssueDocumentRequest{InstitutionID: "inst-i", StudentID: "stu-s", Type: "TRANSCRIPT", Body: "x"}, "")
	assertAppError(t, err, appErrors.ErrInternal, "")
	assert.Equal(t, 3, f.store.creates)
}

func TestDocumentIssueThroughQueue(t *testing.T) {
	queue := jobs.NewQueue("documents-test", jobs.QueueConfig{Workers: 1})
	f := newDocumentFixture(queue)
	f.svc.RegisterJobs(queue)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	doc, err := f.svc.Issue(ctx, IssueDocumentRequest{InstitutionID: "inst-i", StudentID: "stu-s", Type: "ENROLLMENT_CERTIFICATE", Body: "Enrolled."}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return queue.Stats().Processed == 1
	}, 2*time.Second, 10*time.Millisecond)
	queue.Stop()
	assert.NotNil(t, f.store.docs[doc.ID].FilePath)
}

func TestDocumentVerifyRevokeAndDownload(t *testing.T) {
	f := newDocumentFixture(nil)
	ctx := context.Background()
	doc, err := f.svc.Issue(ctx, IssueDocumentRequest{InstitutionID: "inst-i", StudentID: "stu-s", Type: "CONDUCT_CERTIFICATE", Body: "Good conduct."}, "")
	require.NoError(t, err)

	result, err := f.svc.Verify(ctx, "zzzz-zzzz-zzzz")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "ZZZZ-ZZZZ-ZZZZ", result.Code)
	assert.Empty(t, result.Status)

	result, err = f.svc.Verify(ctx, " "+doc.VerificationCode+" ")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Quispe, Ana", result.StudentName)

	link, err := f.svc.DownloadURL(ctx, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "https://api.example/documents/download?token=")
	file, err := f.svc.OpenDownload(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, doc.ID+".pdf", file.Name)

	_, err = f.svc.OpenDownload(ctx, link.Token+"x")
	assertAppError(t, err, appErrors.ErrForbidden, "invalid download link")

	_, err = f.svc.Revoke(ctx, doc.ID, "  ")
	assertAppError(t, err, appErrors.ErrValidation, "revoke reason is required")

	revoked, err := f.svc.Revoke(ctx, doc.ID, "issued in error")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusRevoked, revoked.Status)

	result, err = f.svc.Verify(ctx, doc.VerificationCode)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, models.DocumentStatusRevoked, result.Status)
	assert.NotNil(t, result.RevokedAt)

	_, err = f.svc.Revoke(ctx, doc.ID, "again")
	assertAppError(t, err, appErrors.ErrPolicy, "document already revoked")

	_, err = f.svc.DownloadURL(ctx, doc.ID)
	assertAppError(t, err, appErrors.ErrPolicy, "document is revoked")
}
