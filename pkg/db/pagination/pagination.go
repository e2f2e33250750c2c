package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50"`
}

// Limit returns the page size clamped to [1, MaxPageSize].
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// Page trims a limit+1 result set and reports whether more rows exist.
func Page[T any](data []T, limit int, extractCursor func(T) string) ([]T, PageInfo) {
	if len(data) <= limit {
		return data, PageInfo{}
	}
	data = data[:limit]
	return data, PageInfo{
		HasMore:       true,
		NextPageToken: extractCursor(data[len(data)-1]),
	}
}
