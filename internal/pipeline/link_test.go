package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/editais-cli/internal/model"
)

const testOrigin = "https://pncp.gov.br"

func TestResolveLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		item model.RawItem
		want string
	}{
		{
			name: "structured identifiers",
			item: model.RawItem{"orgao_cnpj": "12345678000195", "ano": "2024", "numero_sequencial": "10"},
			want: "https://pncp.gov.br/app/editais/12345678000195/2024/10",
		},
		{
			name: "structured beats url",
			item: model.RawItem{"orgao_cnpj": "12345678000195", "ano": "2024", "numero_sequencial": "10", "item_url": "/compras/x"},
			want: "https://pncp.gov.br/app/editais/12345678000195/2024/10",
		},
		{
			name: "punctuated cnpj and alternate keys",
			item: model.RawItem{"cnpj": "12.345.678/0001-95", "anoCompra": "2023", "sequencialCompra": "7"},
			want: "https://pncp.gov.br/app/editais/12345678000195/2023/7",
		},
		{
			name: "relative legacy url",
			item: model.RawItem{"url": "/compras/12345678000195/2024/10"},
			want: "https://pncp.gov.br/app/editais/12345678000195/2024/10",
		},
		{
			name: "relative app compras url",
			item: model.RawItem{"item_url": "app/compras/1/2/3"},
			want: "https://pncp.gov.br/app/editais/1/2/3",
		},
		{
			name: "absolute url kept and rewritten",
			item: model.RawItem{"item_url": "https://pncp.gov.br/compras/1/2024/3"},
			want: "https://pncp.gov.br/app/editais/1/2024/3",
		},
		{
			name: "canonical url untouched",
			item: model.RawItem{"item_url": "/app/editais/1/2024/3"},
			want: "https://pncp.gov.br/app/editais/1/2024/3",
		},
		{
			name: "short cnpj falls back to url",
			item: model.RawItem{"orgao_cnpj": "123", "ano": "2024", "numero_sequencial": "10", "url": "/compras/a"},
			want: "https://pncp.gov.br/app/editais/a",
		},
		{
			name: "two digit year falls back",
			item: model.RawItem{"orgao_cnpj": "12345678000195", "ano": "24", "numero_sequencial": "10"},
			want: "",
		},
		{
			name: "missing sequence and url",
			item: model.RawItem{"orgao_cnpj": "12345678000195", "ano": "2024"},
			want: "",
		},
		{
			name: "empty item",
			item: model.RawItem{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ResolveLink(tt.item, testOrigin))
		})
	}
}

func TestResolveLink_OriginTrailingSlash(t *testing.T) {
	t.Parallel()

	got := ResolveLink(model.RawItem{"url": "/compras/9"}, "https://pncp.gov.br/")
	assert.Equal(t, "https://pncp.gov.br/app/editais/9", got)
}
