package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// DefaultNewTokenHeader carries the replacement access token.
const DefaultNewTokenHeader = "X-New-Access-Token"

// RouteClass tells SilentRefresh whether a route runs on an access token.
type RouteClass int

const (
	RouteAuthenticated RouteClass = iota
	RoutePublic
)

// RouteClassifier decides the class of a request.
type RouteClassifier func(*http.Request) RouteClass

// PublicPaths classifies requests whose path equals or ends with one of
// suffixes as public and everything else as authenticated. Any route ending
// in a listed suffix matches; use ExactPaths when the full paths are known.
func PublicPaths(suffixes ...string) RouteClassifier {
	list := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if s = strings.TrimRight(s, "/"); s != "" {
			list = append(list, s)
		}
	}
	return func(r *http.Request) RouteClass {
		path := strings.TrimRight(r.URL.Path, "/")
		for _, s := range list {
			if strings.HasSuffix(path, s) {
				return RoutePublic
			}
		}
		return RouteAuthenticated
	}
}

// ExactPaths classifies requests whose path is exactly one of paths as
// public. A trailing slash is ignored on both sides.
func ExactPaths(paths ...string) RouteClassifier {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p = strings.TrimRight(p, "/"); p != "" {
			set[p] = struct{}{}
		}
	}
	return func(r *http.Request) RouteClass {
		if _, ok := set[strings.TrimRight(r.URL.Path, "/")]; ok {
			return RoutePublic
		}
		return RouteAuthenticated
	}
}

// Refresher is the part of *tenantauth.Engine SilentRefresh needs.
type Refresher interface {
	SilentRefresh(ctx context.Context, accessToken string) (string, bool)
}

// Options configures SilentRefresh.
type Options struct {
	// HeaderName defaults to DefaultNewTokenHeader.
	HeaderName string
	// Classifier defaults to treating every route as authenticated.
	Classifier RouteClassifier
}

// SilentRefresh extends near-expiry sessions. On authenticated routes that
// carry a bearer token it asks the Refresher for a replacement and, when one
// is issued, sets it as a response header together with
// Access-Control-Expose-Headers. Status and body are never altered and
// failures are silent.
func SilentRefresh(refresher Refresher, opts Options) func(http.Handler) http.Handler {
	header := opts.HeaderName
	if header == "" {
		header = DefaultNewTokenHeader
	}
	classify := opts.Classifier
	if classify == nil {
		classify = func(*http.Request) RouteClass { return RouteAuthenticated }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if refresher == nil || classify(r) != RouteAuthenticated {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			rw := &refreshWriter{
				ResponseWriter: w,
				attach: func(h http.Header) {
					if fresh, ok := refresher.SilentRefresh(r.Context(), token); ok {
						h.Set(header, fresh)
						h.Add("Access-Control-Expose-Headers", header)
					}
				},
			}
			next.ServeHTTP(rw, r)
			rw.commit()
		})
	}
}

// refreshWriter runs attach exactly once, right before headers are sent.
type refreshWriter struct {
	http.ResponseWriter
	once   sync.Once
	attach func(http.Header)
}

func (w *refreshWriter) commit() {
	w.once.Do(func() { w.attach(w.ResponseWriter.Header()) })
}

func (w *refreshWriter) WriteHeader(status int) {
	w.commit()
	w.ResponseWriter.WriteHeader(status)
}

func (w *refreshWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *refreshWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *refreshWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
