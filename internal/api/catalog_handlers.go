package api

import (
	"net/http"
)

// Catalog handlers, read-only browsing of topics and challenge templates

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics := s.catalog.ListTopics()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"topics": topics,
		"total":  len(topics),
	})
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges := s.catalog.ListChallenges()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"challenges": challenges,
		"total":      len(challenges),
	})
}
