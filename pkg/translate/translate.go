// Package translate maps inbound proxy requests to PNCP upstream URLs.
package translate

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/pncp-proxy/pkg/cache"
)

// RouteKind selects how a request is translated and transformed.
type RouteKind string

const (
	// RouteGeneric forwards the path remainder and query verbatim.
	RouteGeneric RouteKind = "generic"

	// RouteContratacoes forwards to the publication listing unfiltered.
	RouteContratacoes RouteKind = "contratacoes"

	// RouteVeiculos lists publications and keeps vehicle-related ones.
	RouteVeiculos RouteKind = "veiculos"

	// RouteDocumentos lists the documents of one procurement.
	RouteDocumentos RouteKind = "documentos"
)

// Upstream paths and defaults.
const (
	DefaultBaseURL          = "https://pncp.gov.br/api/consulta"
	DefaultDocumentsBaseURL = "https://pncp.gov.br/api/pncp"
	DefaultMount            = "/api/pncp"

	PublicacaoPath = "/v1/contratacoes/publicacao"

	DateLayout          = "20060102"
	DefaultLookbackDays = 7
	DefaultPagina       = 1
	DefaultTamanho      = 50
)

// ErrInvalidRequest marks a request that cannot be forwarded.
var ErrInvalidRequest = errors.New("invalid request")

// Request is an inbound call as the router hands it over.
type Request struct {
	Route RouteKind

	// Path is the inbound path with decoded segments (generic route).
	Path string

	// Query keeps repeated keys and their value order.
	Query url.Values

	// ID is the raw, still percent-encoded, procurement id (documentos route).
	ID string
}

// Target is a fully resolved upstream request.
type Target struct {
	Route RouteKind

	// URL is the absolute upstream URL.
	URL string

	// Host is the upstream host, reported as the response source.
	Host string

	// Path is the upstream path relative to its base (used for cache keys).
	Path string

	// Query is what gets sent upstream.
	Query url.Values

	// ProcurementID is the decoded id for the documentos route.
	ProcurementID string
}

// CacheKey derives the cache key for the target.
func (t Target) CacheKey() cache.CacheKey {
	return cache.CacheKey{
		Route: string(t.Route),
		Path:  t.Path,
		Query: t.Query,
	}
}

// Translator builds upstream URLs. It does no I/O.
type Translator struct {
	base      *url.URL
	documents *url.URL
	mount     string
	now       func() time.Time
}

// Option configures a Translator.
type Option func(*Translator)

// WithClock sets the time source used for date defaults (for testing).
func WithClock(now func() time.Time) Option {
	return func(t *Translator) {
		t.now = now
	}
}

// New creates a translator for the given upstream bases and mount prefix.
func New(baseURL, documentsBaseURL, mount string, opts ...Option) (*Translator, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	documents, err := parseBase(documentsBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse documents base url: %w", err)
	}

	t := &Translator{
		base:      base,
		documents: documents,
		mount:     "/" + strings.Trim(mount, "/"),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Mount returns the generic route prefix.
func (t *Translator) Mount() string {
	return t.mount
}

// Host returns the host of the main upstream base.
func (t *Translator) Host() string {
	return t.base.Host
}

// Translate resolves req into an upstream target.
func (t *Translator) Translate(req Request) (Target, error) {
	switch req.Route {
	case RouteGeneric, "":
		return t.generic(req)
	case RouteContratacoes:
		return t.build(t.base, RouteContratacoes, PublicacaoPath, req.Query)
	case RouteVeiculos:
		return t.build(t.base, RouteVeiculos, PublicacaoPath, t.vehicleQuery(req.Query))
	case RouteDocumentos:
		return t.documentsTarget(req)
	default:
		return Target{}, fmt.Errorf("%w: unknown route %q", ErrInvalidRequest, req.Route)
	}
}

// DocumentsURL returns the escaped upstream listing URL for a procurement.
// Download links are formed by appending "/<document id>".
func (t *Translator) DocumentsURL(procurementID string) string {
	return strings.TrimRight(t.documents.String(), "/") + escapedDocumentsPath(documentsPath(procurementID))
}

func (t *Translator) generic(req Request) (Target, error) {
	remainder := req.Path
	if remainder == t.mount || strings.HasPrefix(remainder, t.mount+"/") {
		remainder = strings.TrimPrefix(remainder, t.mount)
	}

	if strings.Trim(remainder, "/") == "" {
		return Target{}, fmt.Errorf("%w: nothing to forward after %s", ErrInvalidRequest, t.mount)
	}

	if !strings.HasPrefix(remainder, "/") {
		remainder = "/" + remainder
	}

	return t.build(t.base, RouteGeneric, remainder, req.Query)
}

// vehicleQuery copies query and fills in the listing defaults.
func (t *Translator) vehicleQuery(query url.Values) url.Values {
	q := cloneValues(query)
	today := t.now()

	setDefault(q, "dataInicial", today.AddDate(0, 0, -DefaultLookbackDays).Format(DateLayout))
	setDefault(q, "dataFinal", today.Format(DateLayout))
	setDefault(q, "pagina", strconv.Itoa(DefaultPagina))
	setDefault(q, "tamanhoPagina", strconv.Itoa(DefaultTamanho))

	return q
}

func (t *Translator) documentsTarget(req Request) (Target, error) {
	id, err := url.PathUnescape(req.ID)
	if err != nil {
		return Target{}, fmt.Errorf("%w: malformed id %q: %v", ErrInvalidRequest, req.ID, err)
	}
	if strings.TrimSpace(id) == "" {
		return Target{}, fmt.Errorf("%w: procurement id is required", ErrInvalidRequest)
	}

	target, err := t.build(t.documents, RouteDocumentos, documentsPath(id), req.Query)
	if err != nil {
		return Target{}, err
	}
	target.ProcurementID = id
	return target, nil
}

// build joins path onto base; path is given decoded and escaped here.
func (t *Translator) build(base *url.URL, route RouteKind, path string, query url.Values) (Target, error) {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + path
	u.RawPath = ""

	// A "/" inside a segment (documentos ids) must stay escaped.
	if route == RouteDocumentos {
		u.RawPath = strings.TrimRight(base.EscapedPath(), "/") + escapedDocumentsPath(path)
	}

	q := cloneValues(query)
	u.RawQuery = q.Encode()

	return Target{
		Route: route,
		URL:   u.String(),
		Host:  u.Host,
		Path:  path,
		Query: q,
	}, nil
}

func documentsPath(id string) string {
	return "/v1/compras/" + id + "/arquivos"
}

// escapedDocumentsPath re-escapes the id segment of a documents path.
func escapedDocumentsPath(path string) string {
	id := strings.TrimSuffix(strings.TrimPrefix(path, "/v1/compras/"), "/arquivos")
	return "/v1/compras/" + url.PathEscape(id) + "/arquivos"
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q must be an absolute url", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// ParseQuery splits a raw query string into values. Unlike url.ParseQuery it
// drops nothing: ";" stays part of the key or value, and a malformed escape
// is kept literally. Encoding the result again yields a query the upstream
// decodes to the same pairs.
func ParseQuery(raw string) url.Values {
	q := url.Values{}
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescapeQuery(key)
		q[key] = append(q[key], unescapeQuery(value))
	}
	return q
}

func unescapeQuery(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

func setDefault(q url.Values, key, value string) {
	if q.Get(key) == "" {
		q.Set(key, value)
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = append([]string(nil), values...)
	}
	return out
}
