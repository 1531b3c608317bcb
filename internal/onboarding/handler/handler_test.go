package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"onboarding-gateway/internal/kyc"
	"onboarding-gateway/internal/license"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/handler/mocks"
	"onboarding-gateway/internal/profile"
	"onboarding-gateway/internal/ratelimit"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
	"onboarding-gateway/pkg/testutil"
)

type OnboardingHandlerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	service    *mocks.MockService
	stream     *mocks.MockStream
	router     chi.Router
	providerID id.ProviderID
}

func TestOnboardingHandlerSuite(t *testing.T) {
	suite.Run(t, new(OnboardingHandlerSuite))
}

func (s *OnboardingHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.stream = mocks.NewMockStream(s.ctrl)
	s.providerID = id.ProviderID(uuid.New())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.service, s.stream, logger, "/onboarding")
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterWebhooks(s.router)
}

func (s *OnboardingHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

// do sends req as the authenticated provider.
func (s *OnboardingHandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.WithProvider(req, s.providerID))
}

func (s *OnboardingHandlerSuite) doAnonymous(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

func (s *OnboardingHandlerSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func multipartBody(s *suite.Suite, field, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="licencia.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	s.Require().NoError(err)
	_, err = part.Write(data)
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())
	return body, mw.FormDataContentType()
}

func (s *OnboardingHandlerSuite) TestChecklist() {
	path := "/onboarding/profile"
	st := onboarding.NewState([]onboarding.Step{
		{ID: steps.IDProfile, IsRequired: true, IsComplete: true, ActionPath: &path},
		{ID: steps.IDIdentity, IsRequired: true, ActionPath: &path},
	})
	s.service.EXPECT().Checklist(gomock.Any(), s.providerID).Return(st, nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/onboarding/checklist", nil))

	s.Equal(http.StatusOK, w.Code)
	var body map[string]any
	s.decode(w, &body)
	s.Equal(float64(50), body["percentage"])
	s.Equal(float64(1), body["completed_required"])
	s.Equal("identity", body["next_step"].(map[string]any)["id"])
	s.Equal(false, body["can_refetch"])
}

func (s *OnboardingHandlerSuite) TestChecklistRequiresProvider() {
	w := s.doAnonymous(httptest.NewRequest(http.MethodGet, "/onboarding/checklist", nil))
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *OnboardingHandlerSuite) TestRefetchLoadErrorIsStillOK() {
	st := onboarding.State{
		Error:      steps.NewError(steps.KindTransient, "No pudimos cargar tu progreso. Intenta de nuevo."),
		CanRefetch: true,
	}
	s.service.EXPECT().Refetch(gomock.Any(), s.providerID).Return(st, nil)

	w := s.do(httptest.NewRequest(http.MethodPost, "/onboarding/checklist/refetch", nil))

	s.Equal(http.StatusOK, w.Code)
	var body map[string]any
	s.decode(w, &body)
	s.Equal(true, body["can_refetch"])
	s.Equal("transient", body["error"].(map[string]any)["kind"])
}

func (s *OnboardingHandlerSuite) TestUpdateProfile() {
	s.Run("normalizes and saves", func() {
		s.service.EXPECT().UpdateProfile(gomock.Any(), s.providerID, profile.UpdateRequest{
			DisplayName: "Ana Pérez",
			Phone:       "+52 55 1234 5678",
			City:        "Puebla",
			Specialty:   "Nutrición",
		}).Return(&profile.Profile{
			DisplayName: "Ana Pérez",
			Phone:       "+52 55 1234 5678",
			City:        "Puebla",
			Specialty:   "Nutrición",
		}, nil)

		w := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, "/onboarding/profile", map[string]string{
			"display_name": "  Ana Pérez ",
			"phone":        "+52 55 1234 5678",
			"city":         "Puebla",
			"specialty":    "Nutrición",
		}))

		s.Equal(http.StatusOK, w.Code)
		resp := testutil.UnmarshalResponse[ProfileResponse](s.T(), w)
		s.True(resp.Complete)
		s.False(resp.Published)
	})

	s.Run("unknown field", func() {
		w := s.do(httptest.NewRequest(http.MethodPut, "/onboarding/profile", strings.NewReader(`{"nickname":"x"}`)))
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("invalid phone", func() {
		w := s.do(httptest.NewRequest(http.MethodPut, "/onboarding/profile", strings.NewReader(`{"phone":"call me"}`)))
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *OnboardingHandlerSuite) TestPublishBeforePrerequisites() {
	s.service.EXPECT().PublishListing(gomock.Any(), s.providerID).
		Return(nil, dErrors.New(dErrors.CodeConflict, "completa los pasos anteriores antes de publicar"))

	w := s.do(httptest.NewRequest(http.MethodPost, "/onboarding/marketplace/publish", nil))

	testutil.AssertStatusAndError(s.T(), w, http.StatusConflict, "conflict")
}

func (s *OnboardingHandlerSuite) TestStartIdentity() {
	expires := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)

	s.Run("new session", func() {
		s.service.EXPECT().StartIdentity(gomock.Any(), s.providerID).Return(kyc.StartResult{
			SessionID:   "sess-1",
			RedirectURL: "https://verify.example.com/flow/1",
			ExpiresAt:   expires,
		}, nil)

		w := s.do(httptest.NewRequest(http.MethodPost, "/onboarding/identity/session", nil))

		s.Equal(http.StatusCreated, w.Code)
		resp := testutil.UnmarshalResponse[IdentitySessionResponse](s.T(), w)
		s.Equal("https://verify.example.com/flow/1", resp.RedirectURL)
		s.True(expires.Equal(resp.ExpiresAt))
		s.False(resp.Reused)
	})

	s.Run("in-flight session is reused", func() {
		s.service.EXPECT().StartIdentity(gomock.Any(), s.providerID).Return(kyc.StartResult{
			SessionID:   "sess-1",
			RedirectURL: "https://verify.example.com/flow/1",
			Reused:      true,
		}, nil)

		w := s.do(httptest.NewRequest(http.MethodPost, "/onboarding/identity/session", nil))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("provider outage", func() {
		s.service.EXPECT().StartIdentity(gomock.Any(), s.providerID).
			Return(kyc.StartResult{}, dErrors.New(dErrors.CodeUnavailable, "el servicio de verificación no está disponible"))

		w := s.do(httptest.NewRequest(http.MethodPost, "/onboarding/identity/session", nil))
		testutil.AssertStatusAndError(s.T(), w, http.StatusServiceUnavailable, "unavailable")
	})
}

func (s *OnboardingHandlerSuite) TestIdentityReturnRedirects() {
	s.Run("status from a fresh check", func() {
		s.service.EXPECT().IdentityReturn(gomock.Any(), s.providerID, "verified").
			Return(steps.Projection{Status: "in_progress"}, nil)

		w := s.do(httptest.NewRequest(http.MethodGet, "/onboarding/identity/return?sync=verified", nil))

		s.Equal(http.StatusSeeOther, w.Code)
		s.Equal("/onboarding?identity=in_progress&step=identity", w.Header().Get("Location"))
	})

	s.Run("failed check", func() {
		s.service.EXPECT().IdentityReturn(gomock.Any(), s.providerID, "").
			Return(steps.Projection{}, dErrors.New(dErrors.CodeUnavailable, "timeout"))

		w := s.do(httptest.NewRequest(http.MethodGet, "/onboarding/identity/return", nil))

		s.Equal(http.StatusSeeOther, w.Code)
		s.Equal("/onboarding?identity=unknown&step=identity", w.Header().Get("Location"))
	})
}

func (s *OnboardingHandlerSuite) TestUploadLicense() {
	png := append([]byte("\x89PNG\x0D\x0A\x1A\x0A"), make([]byte, 64)...)

	s.Run("accepted for review", func() {
		s.service.EXPECT().UploadLicense(gomock.Any(), s.providerID, gomock.Any()).DoAndReturn(
			func(_ any, _ id.ProviderID, doc license.Document) (steps.Projection, error) {
				s.Equal("licencia.png", doc.Filename)
				s.Equal("image/png", doc.ContentType)
				s.Equal(png, doc.Data)
				return steps.Projection{Status: string(license.StatusInReview), StatusText: "En Revisión"}, nil
			})

		body, ct := multipartBody(&s.Suite, "license", "image/png", png)
		req := httptest.NewRequest(http.MethodPost, "/onboarding/license", body)
		req.Header.Set("Content-Type", ct)
		w := s.do(req)

		s.Equal(http.StatusAccepted, w.Code)
		var resp StepResponse
		s.decode(w, &resp)
		s.Equal("in_review", resp.Status)
		s.Equal("En Revisión", resp.StatusText)
	})

	s.Run("verified immediately", func() {
		s.service.EXPECT().UploadLicense(gomock.Any(), s.providerID, gomock.Any()).
			Return(steps.Projection{Status: string(license.StatusVerified), Complete: true}, nil)

		body, ct := multipartBody(&s.Suite, "license", "image/png", png)
		req := httptest.NewRequest(http.MethodPost, "/onboarding/license", body)
		req.Header.Set("Content-Type", ct)
		w := s.do(req)

		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("missing field", func() {
		body, ct := multipartBody(&s.Suite, "document", "image/png", png)
		req := httptest.NewRequest(http.MethodPost, "/onboarding/license", body)
		req.Header.Set("Content-Type", ct)
		w := s.do(req)

		testutil.AssertStatusAndError(s.T(), w, http.StatusBadRequest, "bad_request")
	})

	s.Run("validation error from service", func() {
		s.service.EXPECT().UploadLicense(gomock.Any(), s.providerID, gomock.Any()).
			Return(steps.Projection{}, dErrors.New(dErrors.CodeValidation, "solo se aceptan imágenes JPG, PNG o WEBP"))

		body, ct := multipartBody(&s.Suite, "license", "application/pdf", []byte("%PDF-1.7"))
		req := httptest.NewRequest(http.MethodPost, "/onboarding/license", body)
		req.Header.Set("Content-Type", ct)
		w := s.do(req)

		resp := testutil.AssertStatusAndError(s.T(), w, http.StatusBadRequest, "validation_error")
		s.Equal("solo se aceptan imágenes JPG, PNG o WEBP", resp.ErrorDescription)
	})
}

func (s *OnboardingHandlerSuite) TestLicenseStatusUnavailable() {
	s.service.EXPECT().LicenseStatus(gomock.Any(), s.providerID).
		Return(steps.Projection{}, dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeUnavailable, "review service unavailable"))

	w := s.do(httptest.NewRequest(http.MethodGet, "/onboarding/license/status", nil))

	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.NotContains(w.Body.String(), "dial tcp")
}

func (s *OnboardingHandlerSuite) TestEventsStreamsInitialState() {
	st := onboarding.State{Percentage: 75}
	s.service.EXPECT().Checklist(gomock.Any(), s.providerID).Return(st, nil)
	s.stream.EXPECT().Serve(gomock.Any(), gomock.Any(), s.providerID, st).Return(nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/onboarding/events", nil))
	s.Equal(http.StatusOK, w.Code)
}

func (s *OnboardingHandlerSuite) TestReviewWebhook() {
	reviewed := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	s.Run("applied", func() {
		s.service.EXPECT().HandleReviewEvent(gomock.Any(), license.ReviewEvent{
			DocumentRef:     "licenses/p/s.png",
			Status:          license.StatusRejected,
			RejectionReason: "foto borrosa",
			ReviewedAt:      reviewed,
		}).Return(nil)

		body := `{"document_ref":"licenses/p/s.png","status":"REJECTED","rejection_reason":" foto borrosa ","reviewed_at":"2026-05-02T09:00:00Z"}`
		w := s.doAnonymous(httptest.NewRequest(http.MethodPost, "/webhooks/license-review", strings.NewReader(body)))

		s.Equal(http.StatusNoContent, w.Code)
	})

	s.Run("missing status", func() {
		w := s.doAnonymous(httptest.NewRequest(http.MethodPost, "/webhooks/license-review",
			strings.NewReader(`{"document_ref":"licenses/p/s.png"}`)))
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown submission", func() {
		s.service.EXPECT().HandleReviewEvent(gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeNotFound, "license submission not found"))

		w := s.doAnonymous(httptest.NewRequest(http.MethodPost, "/webhooks/license-review",
			strings.NewReader(`{"document_ref":"licenses/x.png","status":"verified"}`)))
		s.Equal(http.StatusNotFound, w.Code)
	})
}

func (s *OnboardingHandlerSuite) TestRateLimitedIdentityStart() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(ratelimit.NewInMemory(), logger,
		ratelimit.WithPolicy(ratelimit.ClassIdentitySession, ratelimit.Policy{Limit: 1, Window: time.Hour}))
	router := chi.NewRouter()
	New(s.service, s.stream, logger, "/onboarding", WithRateLimiter(limiter)).Register(router)

	s.service.EXPECT().StartIdentity(gomock.Any(), s.providerID).
		Return(kyc.StartResult{SessionID: "sess-1", RedirectURL: "https://verify.example.com/flow/1"}, nil).
		Times(1)

	first := testutil.DoRequest(router, testutil.WithProvider(
		httptest.NewRequest(http.MethodPost, "/onboarding/identity/session", nil), s.providerID))
	s.Equal(http.StatusCreated, first.Code)

	second := testutil.DoRequest(router, testutil.WithProvider(
		httptest.NewRequest(http.MethodPost, "/onboarding/identity/session", nil), s.providerID))
	s.Equal(http.StatusTooManyRequests, second.Code)
	s.NotEmpty(second.Header().Get("Retry-After"))
}
