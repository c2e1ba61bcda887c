// Package transform shapes upstream PNCP payloads per route kind.
//
// Every function here is pure: the input bytes are decoded into fresh values
// and the output is encoded anew, so callers may keep using the input.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/Sternrassler/pncp-proxy/pkg/translate"
)

// FilterVeiculos is the label reported by the vehicle filter.
const FilterVeiculos = "veiculos"

// Document categories.
const (
	CategoryEdital = "EDITAL"
	CategoryAnexo  = "ANEXO"
)

// ErrUnexpectedShape is returned when a payload is valid JSON but not the
// structure a route expects.
var ErrUnexpectedShape = errors.New("unexpected payload shape")

// vehicleKeywords are matched as lowercase substrings of objetoCompra.
var vehicleKeywords = []string{
	"ônibus", "onibus",
	"van",
	"ambulância", "ambulancia",
	"caminhonete",
	"picape", "pickup",
	"veículo utilitário",
	"utilitário", "utilitario",
	"frota",
	"automóvel", "automovel",
	"caminhão", "caminhao",
	"transporte",
	"locação de veículo",
	"veículo", "veiculo",
}

var codec = sonic.Config{
	UseNumber:   true,
	SortMapKeys: true,
}.Froze()

// Route describes what a payload is being shaped for.
type Route struct {
	Kind translate.RouteKind

	// ProcurementID and DocumentsURL are needed by the documentos route only.
	ProcurementID string
	DocumentsURL  string
}

// Output is a transformed payload.
type Output struct {
	Payload   json.RawMessage
	ItemCount int
}

// Document is the projected form of an upstream document record.
type Document struct {
	ID              any    `json:"id"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	DownloadURL     string `json:"downloadUrl"`
	PublicationDate any    `json:"publicationDate"`
	Size            any    `json:"size"`
}

// DocumentList is the documentos route payload.
type DocumentList struct {
	ProcurementID string     `json:"idContratacao"`
	Documents     []Document `json:"documentos"`
	Total         int        `json:"total"`
}

// Transform shapes raw for route.
func Transform(raw json.RawMessage, route Route) (Output, error) {
	switch route.Kind {
	case translate.RouteVeiculos:
		return FilterVehicles(raw)
	case translate.RouteDocumentos:
		return ProjectDocuments(raw, route.ProcurementID, route.DocumentsURL)
	default:
		return Identity(raw)
	}
}

// Identity returns a copy of raw and counts its items.
func Identity(raw json.RawMessage) (Output, error) {
	var value any
	if err := codec.Unmarshal(raw, &value); err != nil {
		return Output{}, fmt.Errorf("decode payload: %w", err)
	}

	payload := make(json.RawMessage, len(raw))
	copy(payload, raw)

	return Output{Payload: payload, ItemCount: countItems(value)}, nil
}

// FilterVehicles keeps the items under "data" whose objetoCompra mentions a
// vehicle. Order is preserved and the result can be filtered again unchanged.
func FilterVehicles(raw json.RawMessage) (Output, error) {
	var value any
	if err := codec.Unmarshal(raw, &value); err != nil {
		return Output{}, fmt.Errorf("decode payload: %w", err)
	}

	page, ok := value.(map[string]any)
	if !ok {
		return Output{}, fmt.Errorf("%w: listing must be an object", ErrUnexpectedShape)
	}

	items, ok := page["data"].([]any)
	if !ok {
		return Output{}, fmt.Errorf("%w: listing has no data array", ErrUnexpectedShape)
	}

	kept := make([]any, 0, len(items))
	for _, item := range items {
		if IsVehicleItem(item) {
			kept = append(kept, item)
		}
	}

	out := make(map[string]any, len(page)+2)
	for key, v := range page {
		out[key] = v
	}
	out["data"] = kept
	out["totalFiltrado"] = len(kept)
	out["filtroAplicado"] = FilterVeiculos

	payload, err := codec.Marshal(out)
	if err != nil {
		return Output{}, fmt.Errorf("encode filtered listing: %w", err)
	}

	return Output{Payload: payload, ItemCount: len(kept)}, nil
}

// IsVehicleItem reports whether item's objetoCompra matches a vehicle keyword.
// Items that are not objects or lack a string objetoCompra never match.
func IsVehicleItem(item any) bool {
	record, ok := item.(map[string]any)
	if !ok {
		return false
	}
	text, ok := record["objetoCompra"].(string)
	if !ok {
		return false
	}
	return MatchesVehicle(text)
}

// MatchesVehicle reports whether text contains a vehicle keyword, ignoring case.
func MatchesVehicle(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range vehicleKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// ProjectDocuments maps upstream document records to Documents.
// documentsURL is the escaped listing URL of the procurement; download links
// are formed by appending the document id.
func ProjectDocuments(raw json.RawMessage, procurementID, documentsURL string) (Output, error) {
	var value any
	if err := codec.Unmarshal(raw, &value); err != nil {
		return Output{}, fmt.Errorf("decode payload: %w", err)
	}

	records, ok := listOf(value)
	if !ok {
		return Output{}, fmt.Errorf("%w: document listing must be an array", ErrUnexpectedShape)
	}

	docs := make([]Document, 0, len(records))
	for i, r := range records {
		record, ok := r.(map[string]any)
		if !ok {
			return Output{}, fmt.Errorf("%w: document %d is not an object", ErrUnexpectedShape, i)
		}
		docs = append(docs, projectDocument(record, documentsURL))
	}

	payload, err := codec.Marshal(DocumentList{
		ProcurementID: procurementID,
		Documents:     docs,
		Total:         len(docs),
	})
	if err != nil {
		return Output{}, fmt.Errorf("encode documents: %w", err)
	}

	return Output{Payload: payload, ItemCount: len(docs)}, nil
}

// Category classifies a document by its name.
func Category(name string) string {
	if strings.Contains(strings.ToLower(name), "edital") {
		return CategoryEdital
	}
	return CategoryAnexo
}

func projectDocument(record map[string]any, documentsURL string) Document {
	id := firstOf(record, "sequencialDocumento", "id")
	name, _ := firstOf(record, "titulo", "nome").(string)

	doc := Document{
		ID:              id,
		Name:            name,
		Category:        Category(name),
		PublicationDate: firstOf(record, "dataPublicacaoPncp", "dataPublicacao"),
		Size:            firstOf(record, "tamanhoArquivo", "tamanho"),
	}
	if id != nil {
		doc.DownloadURL = strings.TrimRight(documentsURL, "/") + "/" + url.PathEscape(fmt.Sprint(id))
	}
	return doc
}

// firstOf returns the first non-null value among keys.
func firstOf(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := record[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// listOf returns a top-level array or the array under "data".
func listOf(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case map[string]any:
		items, ok := v["data"].([]any)
		return items, ok
	default:
		return nil, false
	}
}

func countItems(value any) int {
	items, _ := listOf(value)
	return len(items)
}
