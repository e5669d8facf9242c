package server

import (
	"net/http"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req listRequest
	if !s.decode(w, r, &req) {
		return
	}
	page, err := s.catalog.List(r.Context(), principal, req.Prefix, req.ContinuationToken, req.MaxKeys)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	matches, err := s.catalog.Search(r.Context(), principal, req.Prefix, req.Query)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"objects": matches})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req createFolderRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.catalog.CreateFolder(r.Context(), principal, req.Prefix); err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, messageResponse{Message: "folder created"})
}

// handleUpload stores a single object. The object body is the request
// body; key comes from the query and the content type from the header.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		s.errorResponse(w, http.StatusBadRequest, "InvalidRequest", "key is required")
		return
	}
	defer r.Body.Close()
	entry, err := s.catalog.Put(r.Context(), principal, key, r.Body, r.Header.Get("Content-Type"))
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, uploadResponse{Key: entry.Key, ETag: entry.ETag})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		s.errorResponse(w, http.StatusBadRequest, "InvalidRequest", "key is required")
		return
	}
	entry, err := s.catalog.Head(r.Context(), principal, key)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		s.errorResponse(w, http.StatusBadRequest, "InvalidRequest", "key is required")
		return
	}
	if err := s.catalog.Delete(r.Context(), principal, key); err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "object deleted"})
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req deleteBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.catalog.DeleteMany(r.Context(), principal, req.Keys)
	resp := deleteBatchResponse{
		Deleted: res.Deleted,
		Errors:  []batchErrorResponse{},
	}
	if resp.Deleted == nil {
		resp.Deleted = []string{}
	}
	for _, be := range res.Errors {
		resp.Errors = append(resp.Errors, batchErrorResponse{
			Key:  be.Key,
			Kind: errorKind(be.Err),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}
