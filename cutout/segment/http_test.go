package segment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newCanvas(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 100, 50, 255
	}
	return img
}

func TestHTTPSegmenter_Segment(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/segment", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "test-model", r.FormValue("model"))
		assert.Equal(t, "false", r.FormValue("allow_local_models"))
		assert.Equal(t, "true", r.FormValue("use_cache"))

		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		defer func() {
			_ = file.Close()
		}()
		cfg, err := jpeg.DecodeConfig(file)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Width)
		assert.Equal(t, 1, cfg.Height)

		_, _ = w.Write([]byte(`{"segments":[{"label":"wall","score":0.9,"mask":{"width":2,"height":1,"data":[0.1,0.9]}},{"label":"person","score":0.5}]}`))
	}))
	defer server.Close()

	s := NewHTTPSegmenter(Options{
		Endpoint: server.URL + "/",
		Model:    "test-model",
		UseCache: true,
	}, nil)

	got, err := s.Segment(context.Background(), newCanvas(2, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "wall", got[0].Label)
	assert.Equal(t, 0.9, got[0].Score)
	require.NotNil(t, got[0].Mask)
	assert.Equal(t, 2, got[0].Mask.Width)
	assert.Equal(t, []float64{0.1, 0.9}, got[0].Mask.Scores)

	assert.Equal(t, "person", got[1].Label)
	assert.Nil(t, got[1].Mask)
}

func TestHTTPSegmenter_Segment_PNGMask(t *testing.T) {
	t.Parallel()

	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.SetGray(0, 0, color.Gray{Y: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gray))
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"segments": []map[string]any{
				{"label": "person", "score": 1, "mask": map[string]any{"png": encoded}},
			},
		})
	}))
	defer server.Close()

	s := NewHTTPSegmenter(Options{Endpoint: server.URL}, nil)
	got, err := s.Segment(context.Background(), newCanvas(2, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Mask)
	assert.Equal(t, []float64{1, 0}, got[0].Mask.Scores)
}

func TestHTTPSegmenter_Segment_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantErrMsg string
	}{
		{"服务端错误", http.StatusInternalServerError, `{"error":"oom"}`, "HTTP request failed with status 500"},
		{"非法 JSON", http.StatusOK, `not json`, "unmarshal response"},
		{"非法 base64 mask", http.StatusOK, `{"segments":[{"label":"x","mask":{"png":"%%%"}}]}`, "decode base64"},
		{"非法 png mask", http.StatusOK, `{"segments":[{"label":"x","mask":{"png":"aGVsbG8="}}]}`, "decode png"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s := NewHTTPSegmenter(Options{Endpoint: server.URL}, nil)
			_, err := s.Segment(context.Background(), newCanvas(1, 1))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrMsg)
		})
	}
}

func TestHTTPSegmenter_Prepare(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/models/load", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req loadReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		assert.False(t, req.AllowLocalModels)
		assert.True(t, req.UseCache)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewHTTPSegmenter(Options{Endpoint: server.URL, UseCache: true}, nil)
	assert.NoError(t, s.Prepare(context.Background()))
}

func TestHTTPSegmenter_Prepare_Error(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := NewHTTPSegmenter(Options{Endpoint: server.URL, Model: "missing"}, nil)
	err := s.Prepare(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load model missing")
}

func TestHTTPSegmenter_Logger(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"segments":[{"label":"person","score":1}]}`))
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	s := NewHTTPSegmenter(Options{Endpoint: server.URL, Model: "test-model", Logger: zap.New(core)}, nil)

	_, err := s.Segment(context.Background(), newCanvas(1, 1))
	require.NoError(t, err)

	entries := logs.FilterMessage("get the segment response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "segmenter", entries[0].LoggerName)
	assert.Equal(t, "test-model", entries[0].ContextMap()["model"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["segments"])
}
