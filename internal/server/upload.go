package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"meeting-insights-go/internal/pipeline"
	"meeting-insights-go/internal/types"
)

const (
	primaryField  = "user_audio"
	remotePrefix  = "remote_"
	metadataField = "meetingData"
	formMemory    = 32 << 20
)

type uploadResponse struct {
	OK bool `json:"ok"`
	*pipeline.Result
}

func (s *Server) upload(c *gin.Context) {
	log := reqLog(c).WithField("handler", "upload")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	sub, cleanup, err := parseSubmission(c.Request)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	log.WithField("remotes", len(sub.Remotes)).WithField("metadata", sub.Session != nil).Info("upload received")

	res, err := s.runner.Run(c.Request.Context(), sub)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{OK: true, Result: res})
}

// fail writes the error envelope. Only validation messages reach the client verbatim.
func (s *Server) fail(c *gin.Context, err error) {
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		reqLog(c).WithField("error", err.Error()).Error("unclassified upload error")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
		return
	}
	status := http.StatusInternalServerError
	if se.Kind == pipeline.KindValidation {
		status = http.StatusBadRequest
		reqLog(c).WithField("error", se.Err.Error()).Warn("upload rejected")
	}
	c.JSON(status, gin.H{"ok": false, "error": se.Public()})
}

// parseSubmission reads the multipart body into a Submission. Remote parts
// are ordered by their numeric suffix.
func parseSubmission(r *http.Request) (pipeline.Submission, func(), error) {
	var sub pipeline.Submission
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return sub, nil, pipeline.Validation("upload exceeds %d bytes", tooBig.Limit)
		}
		return sub, nil, pipeline.Validation("invalid multipart body")
	}
	form := r.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }

	primary := form.File[primaryField]
	if len(primary) == 0 {
		return sub, cleanup, pipeline.Validation("missing %s", primaryField)
	}
	p, err := readStream(primary[0], types.RolePrimary, primaryField)
	if err != nil {
		return sub, cleanup, err
	}
	sub.Primary = p

	var fields []string
	for field, files := range form.File {
		if strings.HasPrefix(field, remotePrefix) && len(files) > 0 {
			fields = append(fields, field)
		}
	}
	sort.Slice(fields, func(i, j int) bool { return remoteLess(fields[i], fields[j]) })
	for _, field := range fields {
		for _, fh := range form.File[field] {
			rs, err := readStream(fh, types.RoleRemote, field)
			if err != nil {
				return sub, cleanup, err
			}
			sub.Remotes = append(sub.Remotes, rs)
		}
	}

	meta, ok, err := metadata(form)
	if err != nil {
		return sub, cleanup, err
	}
	if ok {
		session, err := types.ParseSession(meta)
		if err != nil {
			return sub, cleanup, pipeline.Validation("%s: %v", metadataField, err)
		}
		sub.Session = session
	}
	return sub, cleanup, nil
}

func readStream(fh *multipart.FileHeader, role types.Role, field string) (types.UploadedStream, error) {
	f, err := fh.Open()
	if err != nil {
		return types.UploadedStream{}, pipeline.Validation("%s: unreadable part", field)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return types.UploadedStream{}, pipeline.Validation("%s: unreadable part", field)
	}
	if len(data) == 0 {
		return types.UploadedStream{}, pipeline.Validation("%s is empty", field)
	}
	name := fh.Filename
	if name == "" {
		name = field
	}
	return types.UploadedStream{
		Role:        role,
		Field:       field,
		Filename:    name,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// metadata accepts meetingData as a file part or a plain form value.
func metadata(form *multipart.Form) ([]byte, bool, error) {
	if files := form.File[metadataField]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return nil, false, pipeline.Validation("%s: unreadable part", metadataField)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, false, pipeline.Validation("%s: unreadable part", metadataField)
		}
		return data, true, nil
	}
	if vals := form.Value[metadataField]; len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
		return []byte(vals[0]), true, nil
	}
	return nil, false, nil
}

func remoteLess(a, b string) bool {
	na, errA := strconv.Atoi(strings.TrimPrefix(a, remotePrefix))
	nb, errB := strconv.Atoi(strings.TrimPrefix(b, remotePrefix))
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}
