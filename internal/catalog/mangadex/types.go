package mangadex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type mangaListResponse struct {
	Data []mangaData `json:"data"`
}

type mangaResponse struct {
	Data mangaData `json:"data"`
}

type mangaData struct {
	ID            string          `json:"id"`
	Attributes    mangaAttributes `json:"attributes"`
	Relationships []relationship  `json:"relationships"`
}

type mangaAttributes struct {
	Title       map[string]string   `json:"title"`
	AltTitles   []map[string]string `json:"altTitles"`
	Description map[string]string   `json:"description"`
	Status      string              `json:"status"`
	Tags        []tagData           `json:"tags"`
}

type relationship struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		FileName string `json:"fileName"`
		Name     string `json:"name"`
	} `json:"attributes"`
}

type tagListResponse struct {
	Data []tagData `json:"data"`
}

type tagData struct {
	ID         string `json:"id"`
	Attributes struct {
		Name  map[string]string `json:"name"`
		Group string            `json:"group"`
	} `json:"attributes"`
}

// aggregateResponse keeps volumes raw: MangaDex sends an empty array instead
// of an object when there are none.
type aggregateResponse struct {
	Volumes json.RawMessage `json:"volumes"`
}

type aggregateVolume struct {
	Chapters json.RawMessage `json:"chapters"`
}

func (a aggregateResponse) chapterCount() (int, error) {
	volumes := map[string]aggregateVolume{}
	if err := decodeObject(a.Volumes, &volumes); err != nil {
		return 0, fmt.Errorf("decode volumes: %w", err)
	}
	total := 0
	for _, vol := range volumes {
		chapters := map[string]json.RawMessage{}
		if err := decodeObject(vol.Chapters, &chapters); err != nil {
			return 0, fmt.Errorf("decode chapters: %w", err)
		}
		total += len(chapters)
	}
	return total, nil
}

// decodeObject decodes a JSON object into out, treating null and arrays as
// empty.
func decodeObject(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	return json.Unmarshal(trimmed, out)
}
