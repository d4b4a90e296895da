package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprocure/procure-api/internal/service"
	"github.com/openprocure/procure-api/pkg/storage"
)

func newDownloadHandler(t *testing.T) (*ExportHandler, *storage.LocalStorage, *storage.SignedURLSigner) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := service.NewExportService(nil, nil, nil, nil, nil, store, signer, service.ExportConfig{APIPrefix: "/api/v1"}, nil)
	return NewExportHandler(svc), store, signer
}

func TestExportHandlerDownloadInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newDownloadHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/exports/download/garbage", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "garbage"}}

	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// expiredToken builds a correctly signed token whose expiry is in the past.
func expiredToken(t *testing.T, secret, jobID, relPath string) string {
	t.Helper()
	expiresAt := time.Now().Add(-time.Minute).Unix()
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	payload := fmt.Sprintf("%s|%d|%s", jobID, expiresAt, encodedPath)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s.%d.%s.%s", jobID, expiresAt, encodedPath, signature)
}

func TestExportHandlerDownloadServesArtifact(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, store, signer := newDownloadHandler(t)

	relPath, err := store.Save("package_req-1.csv", []byte("Section,Item\nSummary,Audit Score\n"))
	require.NoError(t, err)
	token, _, err := signer.Generate("exp-1", relPath)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/exports/download/"+token, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: token}}

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "package_req-1.csv")
	assert.Contains(t, w.Body.String(), "Audit Score")
}

func TestExportHandlerDownloadExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, store, _ := newDownloadHandler(t)

	relPath, err := store.Save("package_req-2.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	token := expiredToken(t, "test-secret", "exp-2", relPath)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/exports/download/"+token, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: token}}

	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
