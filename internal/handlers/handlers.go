package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Brownie44l1/fashionai/internal/model"
	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
	"github.com/Brownie44l1/fashionai/internal/pkg/logger"
	"github.com/Brownie44l1/fashionai/internal/predict"
	"github.com/Brownie44l1/fashionai/internal/preprocess"
	"github.com/Brownie44l1/fashionai/internal/viewer"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxUploadBytes  = 10 << 20
)

type Handler struct {
	svc     *viewer.Service
	pred    predict.Predictor
	classes []string
	log     *logger.Logger
}

// NewHandler wires the viewer service. pred may be nil when no model is
// loaded; classes names the output indices and may be empty.
func NewHandler(svc *viewer.Service, pred predict.Predictor, classes []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		svc:     svc,
		pred:    pred,
		classes: classes,
		log:     log.WithComponent("http"),
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.CodeOf(err) == "" || apperrors.Is(err, apperrors.CodeMLError) {
		h.log.WithError(err).Error("request failed", "path", r.URL.Path)
	}
	apperrors.WriteError(w, err)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":       "healthy",
		"num_classes":  h.svc.NumClasses(),
		"model_loaded": h.pred != nil,
	})
}

// ListDataset serves GET /api/dataset/{mode}?page=&size=&predict=.
func (h *Handler) ListDataset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	size, err := intParam(q.Get("size"), defaultPageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	withPredict, _ := strconv.ParseBool(q.Get("predict"))

	items, err := h.svc.ListPage(r.Context(), mux.Vars(r)["mode"], page, size, withPredict)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, items)
}

// CropImage serves GET /api/image/{mode}/{id}?method=&seed= as a JPEG.
func (h *Handler) CropImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		h.fail(w, r, apperrors.ValidationError("id must be an integer"))
		return
	}

	var seed *int64
	if s := r.URL.Query().Get("seed"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.fail(w, r, apperrors.ValidationError("seed must be an integer"))
			return
		}
		seed = &v
	}

	out, err := h.svc.CropImage(r.Context(), vars["mode"], id, r.URL.Query().Get("method"), seed)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Write(out)
}

// Predict classifies one preprocessed 224x224x3 HWC tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if h.pred == nil {
		h.fail(w, r, apperrors.UnsupportedError("no model loaded"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		h.fail(w, r, apperrors.ValidationError("failed to read request body"))
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.fail(w, r, apperrors.ValidationError("invalid JSON"))
		return
	}

	expectedSize := preprocess.Height * preprocess.Width * preprocess.Channels
	if len(req.Image) != expectedSize {
		h.fail(w, r, apperrors.ValidationError(fmt.Sprintf("expected %d values, got %d", expectedSize, len(req.Image))))
		return
	}

	tensor := preprocess.Tensor{
		Height:   preprocess.Height,
		Width:    preprocess.Width,
		Channels: preprocess.Channels,
		Data:     req.Image,
	}
	outputs, err := h.pred.Predict(r.Context(), []preprocess.Tensor{tensor})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	probs, class, err := predict.Aggregate(outputs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, h.response(probs, class))
}

// PredictFromImage classifies an uploaded JPEG or PNG by averaging over its
// ten-crop set.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.fail(w, r, apperrors.ValidationError("failed to parse form"))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.fail(w, r, apperrors.ValidationError("no image file provided, use 'image' as the form field name"))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, r, apperrors.ValidationError("failed to read upload"))
		return
	}
	h.log.Debug("received upload", "file", header.Filename, "bytes", header.Size)

	rec, err := h.svc.PredictImage(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, h.response(rec.Probabilities, rec.Predicted))
}

func (h *Handler) response(probs []float64, class int) model.PredictionResponse {
	resp := model.PredictionResponse{
		Class:       h.className(class),
		Index:       class,
		Confidence:  probs[class],
		Predictions: make(map[string]float64, len(probs)),
	}
	for i, p := range probs {
		resp.Predictions[h.className(i)] = p
	}
	return resp
}

func (h *Handler) className(idx int) string {
	if idx < len(h.classes) {
		return h.classes[idx]
	}
	return strconv.Itoa(idx)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperrors.ValidationError(fmt.Sprintf("%q is not an integer", s))
	}
	return v, nil
}
