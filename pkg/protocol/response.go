package protocol

import (
	"github.com/goccy/go-json"
)

// Document is one hit of a search or scroll page.
type Document struct {
	ID    string
	Type  string
	Index string

	// Source is the stored document exactly as returned by the store.
	Source json.RawMessage
}

// SearchResult is one decoded page.
type SearchResult struct {
	// ScrollID is the cursor for the next page. It supersedes every
	// earlier cursor of the same slice.
	ScrollID string
	Hits     []Document
}

type rawHit struct {
	Index  string          `json:"_index"`
	Type   string          `json:"_type"`
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	ScrollID *string `json:"_scroll_id"`
	Hits     *struct {
		Hits *[]rawHit `json:"hits"`
	} `json:"hits"`
}

type countResponse struct {
	Count *int64 `json:"count"`
}

// ParseSearchResponse decodes a search or scroll response body. A cursor
// is mandatory whenever the page carries hits, since the slice must be able
// to continue.
func ParseSearchResponse(body []byte) (*SearchResult, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newParseError(err)
	}

	if resp.Hits == nil || resp.Hits.Hits == nil {
		return nil, missingField("hits.hits")
	}

	hits := *resp.Hits.Hits
	result := &SearchResult{Hits: make([]Document, 0, len(hits))}
	for _, h := range hits {
		result.Hits = append(result.Hits, Document{
			ID:     h.ID,
			Type:   h.Type,
			Index:  h.Index,
			Source: h.Source,
		})
	}

	if resp.ScrollID != nil {
		result.ScrollID = *resp.ScrollID
	}
	if result.ScrollID == "" && len(result.Hits) > 0 {
		return nil, missingField("_scroll_id")
	}

	return result, nil
}

// ParseCountResponse decodes a _count response body.
func ParseCountResponse(body []byte) (int64, error) {
	var resp countResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, newParseError(err)
	}
	if resp.Count == nil {
		return 0, missingField("count")
	}
	return *resp.Count, nil
}

// ParseMappingResponse returns the value stored under index in a _mapping
// response, i.e. {"mappings": {...}}.
func ParseMappingResponse(body []byte, index string) (json.RawMessage, error) {
	return rawMember(body, index)
}

// ParseIndexInfoResponse returns the value stored under index in a
// get-index response (aliases, mappings and settings).
func ParseIndexInfoResponse(body []byte, index string) (json.RawMessage, error) {
	return rawMember(body, index)
}

func rawMember(body []byte, key string) (json.RawMessage, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, newParseError(err)
	}
	value, ok := members[key]
	if !ok {
		return nil, missingField(key)
	}
	return value, nil
}
