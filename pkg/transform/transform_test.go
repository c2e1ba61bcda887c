package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/Sternrassler/pncp-proxy/internal/testutil"
	"github.com/Sternrassler/pncp-proxy/pkg/translate"
)

const testDocumentsURL = "https://pncp.example/api/pncp/v1/compras/00394452000103-1-000001%2F2024/arquivos"

// decode is used to compare payloads structurally.
func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()

	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		t.Fatalf("payload is not a JSON object: %v (%s)", err, raw)
	}
	return out
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCount int
	}{
		{"listing page", testutil.SamplePublicacao, 2},
		{"top-level array", `[1,2,3]`, 3},
		{"plain object", `{"cnpj":"00394452000103"}`, 0},
		{"scalar", `42`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Identity(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("Identity() error = %v", err)
			}
			if string(out.Payload) != tt.raw {
				t.Errorf("Payload = %s, want unchanged %s", out.Payload, tt.raw)
			}
			if out.ItemCount != tt.wantCount {
				t.Errorf("ItemCount = %d, want %d", out.ItemCount, tt.wantCount)
			}
		})
	}
}

func TestIdentity_DoesNotAliasInput(t *testing.T) {
	raw := json.RawMessage(`{"data":[]}`)
	out, err := Identity(raw)
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}

	out.Payload[2] = 'X'
	if string(raw) != `{"data":[]}` {
		t.Errorf("input modified through output: %s", raw)
	}
}

func TestIdentity_InvalidJSON(t *testing.T) {
	if _, err := Identity(json.RawMessage(`{"data":`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestFilterVehicles_Scenario(t *testing.T) {
	raw := json.RawMessage(`{"data":[{"objetoCompra":"Aquisição de ônibus escolar"},{"objetoCompra":"Compra de papel A4"}]}`)

	out, err := FilterVehicles(raw)
	if err != nil {
		t.Fatalf("FilterVehicles() error = %v", err)
	}

	got := decode(t, out.Payload)
	items := got["data"].([]any)
	if len(items) != 1 {
		t.Fatalf("len(data) = %d, want 1", len(items))
	}
	if obj := items[0].(map[string]any)["objetoCompra"]; obj != "Aquisição de ônibus escolar" {
		t.Errorf("kept item = %v", obj)
	}
	if got["totalFiltrado"] != json.Number("1") {
		t.Errorf("totalFiltrado = %v, want 1", got["totalFiltrado"])
	}
	if got["filtroAplicado"] != FilterVeiculos {
		t.Errorf("filtroAplicado = %v, want %s", got["filtroAplicado"], FilterVeiculos)
	}
	if out.ItemCount != 1 {
		t.Errorf("ItemCount = %d, want 1", out.ItemCount)
	}
}

func TestFilterVehicles_PreservesOtherFields(t *testing.T) {
	out, err := FilterVehicles(json.RawMessage(testutil.SamplePublicacao))
	if err != nil {
		t.Fatalf("FilterVehicles() error = %v", err)
	}

	got := decode(t, out.Payload)
	if got["totalRegistros"] != json.Number("2") {
		t.Errorf("totalRegistros = %v, upstream fields must be kept", got["totalRegistros"])
	}
	if got["empty"] != false {
		t.Errorf("empty = %v, want false", got["empty"])
	}
}

func TestFilterVehicles_StableOrder(t *testing.T) {
	raw := json.RawMessage(`{"data":[
		{"n":1,"objetoCompra":"Locação de veículos para a secretaria"},
		{"n":2,"objetoCompra":"Material de limpeza"},
		{"n":3,"objetoCompra":"AMBULÂNCIA tipo A"},
		{"n":4,"objetoCompra":null},
		{"n":5},
		{"n":6,"objetoCompra":"Caminhão basculante"},
		{"n":7,"objetoCompra":12},
		"not an object",
		{"n":8,"objetoCompra":"Serviço de transporte escolar"}
	]}`)

	out, err := FilterVehicles(raw)
	if err != nil {
		t.Fatalf("FilterVehicles() error = %v", err)
	}

	var order []string
	for _, item := range decode(t, out.Payload)["data"].([]any) {
		order = append(order, item.(map[string]any)["n"].(json.Number).String())
	}

	want := []string{"1", "3", "6", "8"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("kept items = %v, want %v", order, want)
	}
}

func TestFilterVehicles_Idempotent(t *testing.T) {
	once, err := FilterVehicles(json.RawMessage(testutil.SamplePublicacao))
	if err != nil {
		t.Fatalf("FilterVehicles() error = %v", err)
	}

	twice, err := FilterVehicles(once.Payload)
	if err != nil {
		t.Fatalf("FilterVehicles() second pass error = %v", err)
	}

	if !reflect.DeepEqual(decode(t, once.Payload), decode(t, twice.Payload)) {
		t.Errorf("second pass changed the result:\n once: %s\ntwice: %s", once.Payload, twice.Payload)
	}
	if once.ItemCount != twice.ItemCount {
		t.Errorf("ItemCount %d != %d", once.ItemCount, twice.ItemCount)
	}
}

func TestFilterVehicles_DoesNotMutateInput(t *testing.T) {
	raw := json.RawMessage(testutil.SamplePublicacao)
	before := string(raw)

	if _, err := FilterVehicles(raw); err != nil {
		t.Fatalf("FilterVehicles() error = %v", err)
	}
	if string(raw) != before {
		t.Error("input was modified")
	}
}

func TestFilterVehicles_UnexpectedShape(t *testing.T) {
	for _, raw := range []string{`[]`, `{"data":{}}`, `{"items":[]}`, `"text"`} {
		_, err := FilterVehicles(json.RawMessage(raw))
		if !errors.Is(err, ErrUnexpectedShape) {
			t.Errorf("FilterVehicles(%s) error = %v, want ErrUnexpectedShape", raw, err)
		}
	}
}

func TestMatchesVehicle(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Aquisição de ônibus escolar", true},
		{"AQUISICAO DE ONIBUS", true},
		{"Contratação de van para transporte", true},
		{"Aquisição de picape 4x4", true},
		{"Pickup cabine dupla", true},
		{"Gestão de frota municipal", true},
		{"Compra de automóvel sedan", true},
		{"Veículo utilitário", true},
		// Plain substring match: "van" inside another word counts too.
		{"Serviço relevante de manutenção", true},
		{"Tubo galvanizado", true},
		{"Compra de papel A4", false},
		{"Medicamentos", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := MatchesVehicle(tt.text); got != tt.want {
				t.Errorf("MatchesVehicle(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestProjectDocuments(t *testing.T) {
	out, err := ProjectDocuments(json.RawMessage(testutil.SampleArquivos), "00394452000103-1-000001/2024", testDocumentsURL)
	if err != nil {
		t.Fatalf("ProjectDocuments() error = %v", err)
	}

	if out.ItemCount != 2 {
		t.Errorf("ItemCount = %d, want 2", out.ItemCount)
	}

	got := decode(t, out.Payload)
	if got["idContratacao"] != "00394452000103-1-000001/2024" {
		t.Errorf("idContratacao = %v", got["idContratacao"])
	}
	if got["total"] != json.Number("2") {
		t.Errorf("total = %v, want 2", got["total"])
	}

	docs := got["documentos"].([]any)
	first := docs[0].(map[string]any)
	second := docs[1].(map[string]any)

	expected := map[string]any{
		"id":              json.Number("1"),
		"name":            "Edital Pregão 01/2024",
		"category":        CategoryEdital,
		"downloadUrl":     testDocumentsURL + "/1",
		"publicationDate": "2024-01-10T10:00:00",
		"size":            json.Number("1024"),
	}
	if !reflect.DeepEqual(first, expected) {
		t.Errorf("first document = %v, want %v", first, expected)
	}

	if second["category"] != CategoryAnexo {
		t.Errorf("second category = %v, want %s", second["category"], CategoryAnexo)
	}
	if second["downloadUrl"] != testDocumentsURL+"/2" {
		t.Errorf("second downloadUrl = %v", second["downloadUrl"])
	}
}

func TestProjectDocuments_FallbackFields(t *testing.T) {
	raw := json.RawMessage(`{"data":[{"id":"abc","nome":"edital retificado","dataPublicacao":"2024-02-01","tamanho":10},{"titulo":null,"nome":"Planilha"}]}`)

	out, err := ProjectDocuments(raw, "42", "https://pncp.example/v1/compras/42/arquivos/")
	if err != nil {
		t.Fatalf("ProjectDocuments() error = %v", err)
	}

	docs := decode(t, out.Payload)["documentos"].([]any)
	first := docs[0].(map[string]any)
	if first["id"] != "abc" || first["name"] != "edital retificado" || first["category"] != CategoryEdital {
		t.Errorf("first document = %v", first)
	}
	if first["downloadUrl"] != "https://pncp.example/v1/compras/42/arquivos/abc" {
		t.Errorf("downloadUrl = %v", first["downloadUrl"])
	}

	second := docs[1].(map[string]any)
	if second["name"] != "Planilha" || second["category"] != CategoryAnexo {
		t.Errorf("second document = %v", second)
	}
	if second["id"] != nil || second["downloadUrl"] != "" {
		t.Errorf("document without id should have no link: %v", second)
	}
}

func TestProjectDocuments_Empty(t *testing.T) {
	out, err := ProjectDocuments(json.RawMessage(`[]`), "1", testDocumentsURL)
	if err != nil {
		t.Fatalf("ProjectDocuments() error = %v", err)
	}

	got := decode(t, out.Payload)
	if docs := got["documentos"].([]any); len(docs) != 0 {
		t.Errorf("documentos = %v, want empty array", docs)
	}
}

func TestProjectDocuments_UnexpectedShape(t *testing.T) {
	for _, raw := range []string{`{"x":1}`, `[1,2]`, `"text"`} {
		_, err := ProjectDocuments(json.RawMessage(raw), "1", testDocumentsURL)
		if !errors.Is(err, ErrUnexpectedShape) {
			t.Errorf("ProjectDocuments(%s) error = %v, want ErrUnexpectedShape", raw, err)
		}
	}
}

func TestCategory(t *testing.T) {
	tests := map[string]string{
		"Edital Pregão 01/2024": CategoryEdital,
		"EDITAL":                CategoryEdital,
		"Anexo I - Edital":      CategoryEdital,
		"Termo de Referência":   CategoryAnexo,
		"":                      CategoryAnexo,
	}

	for name, want := range tests {
		if got := Category(name); got != want {
			t.Errorf("Category(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestTransform_Dispatch(t *testing.T) {
	raw := json.RawMessage(testutil.SamplePublicacao)

	generic, err := Transform(raw, Route{Kind: translate.RouteGeneric})
	if err != nil {
		t.Fatalf("generic error = %v", err)
	}
	if string(generic.Payload) != testutil.SamplePublicacao {
		t.Error("generic route must be identity")
	}

	contratacoes, err := Transform(raw, Route{Kind: translate.RouteContratacoes})
	if err != nil {
		t.Fatalf("contratacoes error = %v", err)
	}
	if string(contratacoes.Payload) != testutil.SamplePublicacao {
		t.Error("contratacoes route must be identity")
	}

	vehicles, err := Transform(raw, Route{Kind: translate.RouteVeiculos})
	if err != nil {
		t.Fatalf("veiculos error = %v", err)
	}
	if vehicles.ItemCount != 1 {
		t.Errorf("veiculos ItemCount = %d, want 1", vehicles.ItemCount)
	}

	docs, err := Transform(json.RawMessage(testutil.SampleArquivos), Route{
		Kind:          translate.RouteDocumentos,
		ProcurementID: "1",
		DocumentsURL:  testDocumentsURL,
	})
	if err != nil {
		t.Fatalf("documentos error = %v", err)
	}
	if docs.ItemCount != 2 {
		t.Errorf("documentos ItemCount = %d, want 2", docs.ItemCount)
	}
}
