// Package pipeline turns PNCP search responses into deduplicated, filtered,
// and sorted procurement records.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/model"
)

// containerKeys are probed in order when the payload is an object.
var containerKeys = []string{
	"items",
	"results",
	"conteudo",
	"licitacoes",
	"data",
	"documents",
	"documentos",
	"content",
	"resultados",
}

// ExtractItems locates the item list inside a decoded response payload.
// Arrays are returned as is; objects are probed for a known container key.
// Any other shape yields an empty slice.
func ExtractItems(payload any) []model.RawItem {
	switch v := payload.(type) {
	case nil:
		return []model.RawItem{}
	case []any:
		return toRawItems(v)
	case map[string]any:
		for _, key := range containerKeys {
			if arr, ok := v[key].([]any); ok {
				return toRawItems(arr)
			}
		}
		zap.L().Debug("pipeline: no item container in response object",
			zap.Int("keys", len(v)),
		)
		return []model.RawItem{}
	default:
		zap.L().Debug("pipeline: unexpected response shape",
			zap.String("type", fmt.Sprintf("%T", payload)),
		)
		return []model.RawItem{}
	}
}

func toRawItems(arr []any) []model.RawItem {
	items := make([]model.RawItem, 0, len(arr))
	for _, el := range arr {
		switch obj := el.(type) {
		case map[string]any:
			items = append(items, model.RawItem(obj))
		case model.RawItem:
			items = append(items, obj)
		}
	}
	return items
}
