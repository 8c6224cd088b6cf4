// Package esx keeps a searchable snapshot of visitor state in Elasticsearch.
package esx

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"golang.org/x/crypto/blake2b"

	"visitor-beacon-api/internal/config"
	"visitor-beacon-api/internal/visitor"
)

type Client = es8.Client

// Open returns a nil client without error when ES_ADDRS is unset.
func Open(cfg *config.Config) (*Client, func(), error) {
	if strings.TrimSpace(cfg.ES.Addrs) == "" {
		return nil, func() {}, nil
	}
	raw := strings.Split(cfg.ES.Addrs, ",")
	addrs := lo.FilterMap(raw, func(s string, _ int) (string, bool) {
		t := strings.TrimSpace(s)
		return t, t != ""
	})
	es, err := es8.NewClient(es8.Config{Addresses: addrs, Username: cfg.ES.Username, Password: cfg.ES.Password})
	if err != nil {
		return nil, func() {}, err
	}
	return es, func() {}, nil
}

// VisitorDoc is the indexed form of a visitor. The raw IP is replaced by
// its BLAKE2b-256 digest.
type VisitorDoc struct {
	visitor.Visitor
	IPHash string `json:"ip_hash,omitempty"`
}

func NewVisitorDoc(v *visitor.Visitor) VisitorDoc {
	doc := VisitorDoc{Visitor: *v, IPHash: HashIP(v.IP)}
	doc.IP = ""
	return doc
}

func HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// VisitorIndex writes and searches visitor snapshots. A nil client turns
// every call into a no-op.
type VisitorIndex struct {
	es    *Client
	index string
}

func NewVisitorIndex(es *Client, index string) *VisitorIndex {
	return &VisitorIndex{es: es, index: lo.Ternary(index != "", index, "visitors")}
}

func (x *VisitorIndex) Enabled() bool { return x != nil && x.es != nil }

// IndexVisitor upserts the snapshot under the visitor id, versioned by
// lastSeen so an older snapshot never replaces a newer one.
func (x *VisitorIndex) IndexVisitor(ctx context.Context, v *visitor.Visitor) error {
	if !x.Enabled() {
		return nil
	}
	b, err := json.Marshal(NewVisitorDoc(v))
	if err != nil {
		return err
	}
	res, err := x.es.Index(x.index, bytes.NewReader(b),
		x.es.Index.WithContext(ctx),
		x.es.Index.WithDocumentID(v.ID),
		x.es.Index.WithVersion(int(v.LastSeen.UnixMilli())),
		x.es.Index.WithVersionType("external_gte"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	// a conflict means a newer snapshot is already indexed
	if res.StatusCode == http.StatusConflict {
		return nil
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmtError(res)
	}
	return nil
}

type SearchResult struct {
	Total int          `json:"total"`
	Hits  []VisitorDoc `json:"hits"`
}

var searchFields = []string{
	"id^3", "city", "country", "deviceType", "browser", "os",
	"referrerSource", "referrerDomain", "utmSource", "utmCampaign", "currentPage",
}

// Search runs a multi-field query over the snapshots, newest first. An
// empty query matches everything.
func (x *VisitorIndex) Search(ctx context.Context, query string, from, size int) (SearchResult, error) {
	if !x.Enabled() {
		return SearchResult{Hits: []VisitorDoc{}}, nil
	}
	q := map[string]any{"match_all": map[string]any{}}
	if strings.TrimSpace(query) != "" {
		q = map[string]any{"multi_match": map[string]any{"query": query, "fields": searchFields, "lenient": true}}
	}
	body := map[string]any{
		"query": q,
		"sort":  []any{map[string]any{"lastSeen": map[string]any{"order": "desc", "unmapped_type": "date"}}},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return SearchResult{}, err
	}
	res, err := x.es.Search(
		x.es.Search.WithContext(ctx),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(bytes.NewReader(b)),
		x.es.Search.WithFrom(from),
		x.es.Search.WithSize(size),
	)
	if err != nil {
		return SearchResult{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return SearchResult{}, fmtError(res)
	}

	var raw struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source VisitorDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	out := SearchResult{Total: raw.Hits.Total.Value, Hits: make([]VisitorDoc, 0, len(raw.Hits.Hits))}
	for _, h := range raw.Hits.Hits {
		out.Hits = append(out.Hits, h.Source)
	}
	return out, nil
}

func fmtError(res *esapi.Response) error { return fmt.Errorf("es error: %s", res.String()) }
