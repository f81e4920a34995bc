// Package source loads pages into analyzable documents from the network,
// a headless browser or the local filesystem.
package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PentesterFlow/pagescope/internal/dom"
)

// Kind names a source implementation.
type Kind string

// Source kinds.
const (
	KindAuto    Kind = "auto"
	KindHTTP    Kind = "http"
	KindBrowser Kind = "browser"
	KindFile    Kind = "file"
)

// ParseKind validates a source name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAuto, KindHTTP, KindBrowser, KindFile:
		return k, nil
	case "":
		return KindAuto, nil
	default:
		return "", fmt.Errorf("unknown source %q (want auto, http, browser or file)", s)
	}
}

// Source turns a target into a document snapshot.
type Source interface {
	Kind() Kind
	Load(ctx context.Context, target string) (*dom.Document, error)
	Close() error
}

// IsRemote reports whether target is an http(s) URL.
func IsRemote(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Router picks the file source for local targets and the remote source for
// URLs. It backs KindAuto.
type Router struct {
	Remote Source
	Local  Source
}

// Kind implements Source.
func (r *Router) Kind() Kind {
	return KindAuto
}

// Load implements Source.
func (r *Router) Load(ctx context.Context, target string) (*dom.Document, error) {
	if IsRemote(target) {
		return r.Remote.Load(ctx, target)
	}
	return r.Local.Load(ctx, target)
}

// Close closes both sources.
func (r *Router) Close() error {
	err := r.Remote.Close()
	if lerr := r.Local.Close(); err == nil {
		err = lerr
	}
	return err
}
