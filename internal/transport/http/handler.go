package httptransport

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"image-worker-service/internal/artifact"
	"image-worker-service/internal/entity"
	"image-worker-service/internal/service"
)

// multipart parts beyond this are spooled to disk
const formMemory = 32 << 20

type Handler struct {
	taskSvc *service.TaskService
	uploads *artifact.Dir
	results *artifact.Dir
	maxSize int64
	logger  *zap.Logger
}

func NewHandler(taskSvc *service.TaskService, uploads, results *artifact.Dir, maxSize int64, logger *zap.Logger) *Handler {
	return &Handler{taskSvc: taskSvc, uploads: uploads, results: results, maxSize: maxSize, logger: logger}
}

// Upload godoc
// @Summary Upload an image and start a task
// @Description Stores the file, records a PENDING task and enqueues it.
// @Tags tasks
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "image (.jpg .jpeg .png .webp)"
// @Param task_type formData string false "remove_background | enhance | vectorize | vectorize_enhance" default(remove_background)
// @Param scale formData int false "upscale factor: 2, 4 or 8" default(4)
// @Param enhance_before formData bool false "vectorize only: enhance first"
// @Param priority formData int false "0=low,1=normal,2=high" default(1)
// @Success 200 {object} service.SubmitResponse
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+formMemory)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErr(w, http.StatusBadRequest, tooLargeMessage(h.maxSize))
			return
		}
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	req := service.SubmitRequest{
		Filename: header.Filename,
		File:     file,
		Kind:     entity.Kind(strings.TrimSpace(r.FormValue("task_type"))),
		Priority: service.PriorityNormal,
	}
	if v := r.FormValue("scale"); v != "" {
		if req.Scale, err = strconv.Atoi(v); err != nil {
			writeErr(w, http.StatusBadRequest, "scale must be an integer")
			return
		}
	}
	if v := r.FormValue("enhance_before"); v != "" {
		if req.EnhanceBefore, err = strconv.ParseBool(v); err != nil {
			writeErr(w, http.StatusBadRequest, "enhance_before must be a boolean")
			return
		}
	}
	if v := r.FormValue("priority"); v != "" {
		if req.Priority, err = strconv.Atoi(v); err != nil {
			writeErr(w, http.StatusBadRequest, "priority must be an integer")
			return
		}
	}

	resp, err := h.taskSvc.Submit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, artifact.ErrTooLarge):
			writeErr(w, http.StatusBadRequest, tooLargeMessage(h.maxSize))
		case errors.Is(err, service.ErrUnsupportedFile), errors.Is(err, entity.ErrInvalidParameter):
			writeErr(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("submit task",
				zap.String("req_id", middleware.GetReqID(r.Context())),
				zap.String("filename", header.Filename),
				zap.Error(err),
			)
			writeErr(w, http.StatusInternalServerError, "failed to create task")
		}
		return
	}

	h.logger.Info("task submitted",
		zap.String("req_id", middleware.GetReqID(r.Context())),
		zap.String("job_id", resp.TaskID),
		zap.String("type", string(resp.TaskType)),
		zap.String("filename", resp.Filename),
	)
	writeJSON(w, http.StatusOK, resp)
}

// Status godoc
// @Summary Get task status
// @Description result is null while pending, the progress percent while processing, the output filename on success and the error message on failure.
// @Tags tasks
// @Produce json
// @Param task_id path string true "task id (uuid)"
// @Success 200 {object} service.StatusResponse
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /status/{task_id} [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid task id")
		return
	}

	resp, err := h.taskSvc.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error("task status", zap.String("job_id", id.String()), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to get task status")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Result godoc
// @Summary Download a result
// @Tags files
// @Produce png
// @Produce image/svg+xml
// @Param filename path string true "output filename"
// @Success 200 {file} binary
// @Failure 404 {object} apiError
// @Router /result/{filename} [get]
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, h.results)
}

// Original godoc
// @Summary Download an uploaded original
// @Tags files
// @Produce png
// @Produce jpeg
// @Param filename path string true "upload filename"
// @Success 200 {file} binary
// @Failure 404 {object} apiError
// @Router /original/{filename} [get]
func (h *Handler) Original(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, h.uploads)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, dir *artifact.Dir) {
	name := chi.URLParam(r, "filename")
	if strings.HasSuffix(name, ".part") {
		// in-flight write
		writeErr(w, http.StatusNotFound, "file not found")
		return
	}

	f, err := dir.Open(name)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidName) || errors.Is(err, os.ErrNotExist) {
			writeErr(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("open file", zap.String("filename", name), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		writeErr(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", `inline; filename="`+name+`"`)
	http.ServeContent(w, r, name, st.ModTime(), f)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".svg":
		return "image/svg+xml"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func tooLargeMessage(limit int64) string {
	return "file too large, maximum size: " + strconv.FormatInt(limit/(1<<20), 10) + "MB"
}
