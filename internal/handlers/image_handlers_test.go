package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/khangpv/imgprep/internal/config"
	"github.com/khangpv/imgprep/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Processing.Quality = 85
	cfg.Processing.MaxFileSize = 10 * 1024 * 1024
	cfg.Redis.Addr = "localhost:1" // unreachable on purpose; cache is best effort

	processor := service.NewImageProcessor(cfg.Processing.Quality)
	storage, err := service.NewStorageService(cfg)
	require.NoError(t, err)

	handler := NewImageHandler(processor, storage, nil, zap.NewNop(), cfg)

	router := gin.New()
	router.POST("/resize", handler.ResizeImage)
	router.POST("/jobs", handler.EnqueueJob)
	router.GET("/health", handler.HealthCheck)
	return router
}

func multipartUpload(t *testing.T, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "test.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func multipartImage(t *testing.T, width, height int, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	img := imaging.New(width, height, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	return multipartUpload(t, pngBuf.Bytes(), fields)
}

func TestResizeImageHandler(t *testing.T) {
	router := newTestRouter(t)
	body, contentType := multipartImage(t, 640, 480, map[string]string{"max_dimension": "100"})

	req := httptest.NewRequest(http.MethodPost, "/resize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 75, cfg.Height)
}

func TestResizeImageMissingFile(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/resize", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResizeImageInvalidMaxDimension(t *testing.T) {
	router := newTestRouter(t)
	body, contentType := multipartImage(t, 100, 100, map[string]string{"max_dimension": "abc"})

	req := httptest.NewRequest(http.MethodPost, "/resize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResizeImageRejectsNonImagePayload(t *testing.T) {
	router := newTestRouter(t)
	body, contentType := multipartUpload(t, []byte("not an image at all"), nil)

	req := httptest.NewRequest(http.MethodPost, "/resize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid image")
}

func TestHealthCheckReportsServices(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Redis is unreachable in tests, so overall health is degraded.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Data struct {
			Status   string            `json:"status"`
			Services map[string]string `json:"services"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Data.Status)
	assert.Equal(t, "not configured", resp.Data.Services["rabbitmq"])
	assert.Equal(t, "not configured", resp.Data.Services["supabase"])
	assert.Contains(t, resp.Data.Services["redis"], "unhealthy")
}

func TestEnqueueJobWithoutQueue(t *testing.T) {
	router := newTestRouter(t)

	payload, _ := json.Marshal(map[string]interface{}{
		"source":  "/photos/a.heic",
		"outputs": []map[string]interface{}{{"path": "/photos/a.jpg", "height": 1200}},
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
