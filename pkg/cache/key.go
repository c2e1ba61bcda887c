package cache

import (
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached, already transformed, upstream response.
type CacheKey struct {
	// Route is the route kind that produced the payload (e.g. "generic", "veiculos")
	Route string

	// Path is the upstream path (e.g. "/v1/contratacoes/publicacao")
	Path string

	// Query are the upstream query parameters, repeated keys included
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: pncp:route:path:key1=val1:key1=val2:key2=val3
//
// Keys are sorted; the values of a repeated key keep their original order
// because the upstream may treat them positionally. Every part is escaped so
// ":" only ever separates parts, and the path keeps its trailing slash.
//
// Example:
//
//	pncp:generic:v1/contratacoes/publicacao:dataFinal=20240101:dataInicial=20240101:pagina=1
func (k CacheKey) String() string {
	route := k.Route
	if route == "" {
		route = "generic"
	}

	parts := []string{"pncp", url.QueryEscape(route), escapeKeyPath(k.Path)}

	keys := make([]string, 0, len(k.Query))
	for key := range k.Query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Keys without values are dropped, as url.Values.Encode does upstream.
	for _, key := range keys {
		for _, value := range k.Query[key] {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
		}
	}

	return strings.Join(parts, ":")
}

// escapeKeyPath escapes p like a URL path and additionally escapes ":".
// "%" is escaped first, so the result is unambiguous.
func escapeKeyPath(p string) string {
	escaped := (&url.URL{Path: strings.TrimPrefix(p, "/")}).EscapedPath()
	return strings.ReplaceAll(escaped, ":", "%3A")
}
