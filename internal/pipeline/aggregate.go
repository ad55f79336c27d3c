package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sells-group/editais-cli/internal/model"
)

// Shard is the raw output of collecting one municipality.
type Shard struct {
	Key   string
	Items []model.RawItem
}

// Collected is a deduplicated item tagged with the shard it was last seen in.
type Collected struct {
	ShardKey string
	Item     model.RawItem
}

// Aggregate merges shards into one list with at most one entry per item
// identity. On collision the last occurrence wins but keeps the position
// where the identity was first seen.
func Aggregate(shards []Shard) []Collected {
	index := make(map[string]int)
	var out []Collected
	for _, sh := range shards {
		for _, item := range sh.Items {
			key := DedupKey(item, sh.Key)
			c := Collected{ShardKey: sh.Key, Item: item}
			if i, ok := index[key]; ok {
				out[i] = c
				continue
			}
			index[key] = len(out)
			out = append(out, c)
		}
	}
	return out
}

// DedupKey returns the identity of an item. The upstream control number or
// id is preferred, then the (year, sequence, CNPJ) triple, then a content
// hash that includes the shard key.
func DedupKey(item model.RawItem, shardKey string) string {
	if v := firstString(item, controlKeys...); v != "" {
		return "pncp:" + v
	}
	if v := stringify(item["id"]); v != "" {
		return "id:" + v
	}

	year := firstString(item, yearKeys...)
	seq := firstString(item, sequenceKeys...)
	cnpj := firstString(item, cnpjKeys...)
	if year != "" && seq != "" && cnpj != "" {
		if d := digitsOnly(cnpj); d != "" {
			cnpj = d
		}
		return "seq:" + year + "/" + seq + "/" + cnpj
	}

	h := sha256.Sum256([]byte(strings.Join([]string{
		firstString(item, titleKeys...),
		shardKey,
		firstString(item, publishedKeys...),
		firstString(item, issuingBodyKeys...),
	}, "\x1f")))
	return "hash:" + hex.EncodeToString(h[:])
}
