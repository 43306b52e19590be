// Package testutil provides shared fixtures for the dashboard test suites:
// unsigned access tokens and a scriptable fake upstream API.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"
)

// AccessToken mints a structurally valid JWT with the given expiry and
// optional role claim. The signature segment is garbage; nothing in the
// dashboard verifies it.
func AccessToken(exp time.Time, role string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	claims := map[string]any{"exp": exp.Unix()}
	if role != "" {
		claims["role"] = role
	}
	payload, _ := json.Marshal(claims)
	return fmt.Sprintf("%s.%s.sig", header, base64.RawURLEncoding.EncodeToString(payload))
}

// Upstream is a scriptable fake of the monitoring API. Routes are exact-match
// on method+path; unknown requests get a 404 with an empty JSON body.
type Upstream struct {
	Server *httptest.Server
	routes map[string]http.HandlerFunc
}

// NewUpstream starts the fake API. The caller owns Close.
func NewUpstream() *Upstream {
	u := &Upstream{routes: make(map[string]http.HandlerFunc)}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := u.routes[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not found."}`))
	}))
	return u
}

// Handle scripts one route, e.g. Handle("GET", "/devices/", ...).
func (u *Upstream) Handle(method, path string, h http.HandlerFunc) {
	u.routes[method+" "+path] = h
}

// HandleJSON scripts one route to answer a fixed status and JSON body.
func (u *Upstream) HandleJSON(method, path string, status int, body any) {
	u.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
}

// URL returns the fake API base URL.
func (u *Upstream) URL() string {
	return u.Server.URL
}

// Close shuts the fake API down.
func (u *Upstream) Close() {
	u.Server.Close()
}
