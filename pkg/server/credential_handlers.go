package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/s3gate/s3gate/pkg/credentials"
)

func (s *Server) handleTemporaryCredentials(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req temporaryCredentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	cred, err := s.broker.IssueSessionCredentials(r.Context(), principal, req.DurationSeconds)
	if err != nil {
		s.engineError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.CredentialIssued("session")
	}
	s.writeJSON(w, http.StatusOK, cred)
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	key, err := s.keys.Create(r.Context(), principal)
	if err != nil {
		s.engineError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.CredentialIssued("access_key")
	}
	s.writeJSON(w, http.StatusCreated, key)
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	keys, err := s.keys.List(r.Context(), principal)
	if err != nil {
		s.engineError(w, err)
		return
	}
	if keys == nil {
		keys = []credentials.AccessKey{}
	}
	s.writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleSetKeyStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	keyID := mux.Vars(r)["keyId"]
	var req setKeyStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.keys.SetStatus(r.Context(), principal, keyID, req.Status); err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "access key status updated"})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	keyID := mux.Vars(r)["keyId"]
	if err := s.keys.Delete(r.Context(), principal, keyID); err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "access key deleted"})
}

// handleRotateKey rotates a key. When the old key could not be cleaned
// up the new key is still returned, with a warning attached; the new
// key is usable regardless.
func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req rotateKeyRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, err := s.keys.Rotate(r.Context(), principal, req.OldAccessKeyID)
	if err != nil && !errors.Is(err, credentials.ErrStaleKeyCleanup) {
		s.engineError(w, err)
		return
	}
	resp := rotateKeyResponse{AccessKey: *key}
	if err != nil {
		resp.Warning = "old access key could not be deleted and may remain active"
	}
	if s.metrics != nil {
		s.metrics.CredentialIssued("access_key")
	}
	s.writeJSON(w, http.StatusOK, resp)
}
