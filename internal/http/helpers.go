package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	headerOwnerID   = "X-Owner-ID"
	headerRequestID = "X-Request-ID"

	maxOwnerIDLength   = 128
	maxRequestIDLength = 64
)

type ctxKey int

const (
	ownerKey ctxKey = iota
	requestIDKey
)

// requireOwner rejects requests without an owner header and stores the
// owner in the context.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := sanitizeInput(r.Header.Get(headerOwnerID))
		switch {
		case owner == "":
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing " + headerOwnerID + " header"})
			return
		case utf8.RuneCountInString(owner) > maxOwnerIDLength:
			writeJSON(w, http.StatusBadRequest, errorBody{Error: headerOwnerID + " header too long"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}

// withRequestID reuses a caller supplied X-Request-ID or generates one, and
// echoes it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeInput(r.Header.Get(headerRequestID))
		if id == "" || len(id) > maxRequestIDLength {
			id = generateRequestID()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFromRequest(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
