package server

import (
	"net/http"
	"strconv"
)

func (s *Server) handleInitiateUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req initiateUploadRequest
	if !s.decode(w, r, &req) {
		return
	}
	uploadID, err := s.uploads.Initiate(r.Context(), principal, req.Key, req.ContentType)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, initiateUploadResponse{UploadID: uploadID})
}

// handleUploadPart accepts one raw part body. Key, upload id and part
// number travel in the query so the body stays a straight byte stream.
func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	key := query.Get("key")
	uploadID := query.Get("uploadId")
	partNumber, err := strconv.Atoi(query.Get("partNumber"))
	if key == "" || uploadID == "" || err != nil {
		s.errorResponse(w, http.StatusBadRequest, "InvalidRequest", "key, uploadId and partNumber are required")
		return
	}
	defer r.Body.Close()
	etag, err := s.uploads.UploadPart(r.Context(), principal, key, uploadID, partNumber, r.Body)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"etag": etag})
}

func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req completeUploadRequest
	if !s.decode(w, r, &req) {
		return
	}
	obj, err := s.uploads.Complete(r.Context(), principal, req.Key, req.UploadID, req.Parts)
	if err != nil {
		s.engineError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.UploadFinished("completed")
	}
	s.writeJSON(w, http.StatusOK, uploadResponse{Key: obj.Key, ETag: obj.ETag})
}

func (s *Server) handleAbortUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req abortUploadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.uploads.Abort(r.Context(), principal, req.Key, req.UploadID); err != nil {
		s.engineError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.UploadFinished("aborted")
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "upload aborted"})
}
