package qart

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/quatton/qpaper/pkg/qjob"
)

// ResultFileScrap names a scrap whose value is the path of a file to serve
// as the job output. Relative paths resolve against the home directory.
const ResultFileScrap = "result-file"

const (
	scrapMediaPrefix = "application/scrapbook.scrap."
	textMediaType    = "text/plain"
)

// Scrap is a value a notebook published with scrapbook's glue.
type Scrap struct {
	Name string
	// Data is the glued value, set for scraps stored as data.
	Data json.RawMessage
	// Display holds the display_data bundle by media type, set for scraps
	// glued with display enabled.
	Display map[string]json.RawMessage
}

type scrapOutput struct {
	OutputType string                     `json:"output_type"`
	Data       map[string]json.RawMessage `json:"data"`
	Metadata   struct {
		Scrapbook *struct {
			Name    string `json:"name"`
			Data    bool   `json:"data"`
			Display bool   `json:"display"`
		} `json:"scrapbook"`
	} `json:"metadata"`
}

type notebookFile struct {
	Cells []struct {
		Outputs []scrapOutput `json:"outputs"`
	} `json:"cells"`
}

type scrapPayload struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// ReadScraps parses an nbformat 4 notebook and returns its scraps in order of
// first appearance. A name glued twice keeps the later value.
func ReadScraps(r io.Reader) ([]Scrap, error) {
	var nb notebookFile
	if err := json.NewDecoder(r).Decode(&nb); err != nil {
		return nil, fmt.Errorf("parsing notebook: %w", err)
	}

	var scraps []Scrap
	index := map[string]int{}
	scrap := func(name string) *Scrap {
		i, ok := index[name]
		if !ok {
			i = len(scraps)
			index[name] = i
			scraps = append(scraps, Scrap{Name: name})
		}
		return &scraps[i]
	}

	for _, cell := range nb.Cells {
		for _, out := range cell.Outputs {
			meta := out.Metadata.Scrapbook
			if meta == nil {
				continue
			}
			if meta.Data {
				for media, raw := range out.Data {
					if !strings.HasPrefix(media, scrapMediaPrefix) || !strings.HasSuffix(media, "+json") {
						continue
					}
					var payload scrapPayload
					if err := json.Unmarshal(raw, &payload); err != nil {
						return nil, fmt.Errorf("scrap %s: %w", meta.Name, err)
					}
					name := payload.Name
					if name == "" {
						name = meta.Name
					}
					scrap(name).Data = payload.Data
				}
			}
			if meta.Display && out.OutputType == "display_data" && meta.Name != "" {
				scrap(meta.Name).Display = out.Data
			}
		}
	}
	return scraps, nil
}

// Output turns a scrap into a job output. Displayed scraps prefer a rich
// media type over text/plain; images are base64 decoded.
func (s Scrap) Output() *qjob.Output {
	if len(s.Display) == 0 {
		return &qjob.Output{Name: s.Name, Value: s.Data}
	}

	media := preferredMediaType(s.Display)
	raw := s.Display[media]
	text, ok := textOf(raw)
	if !ok {
		return &qjob.Output{Name: s.Name, MediaType: media, Value: raw}
	}
	if isBinaryMediaType(media) {
		if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text)); err == nil {
			return &qjob.Output{Name: s.Name, MediaType: media, Content: decoded}
		}
	}
	return &qjob.Output{Name: s.Name, MediaType: media, Content: []byte(text)}
}

func preferredMediaType(bundle map[string]json.RawMessage) string {
	types := make([]string, 0, len(bundle))
	for media := range bundle {
		types = append(types, media)
	}
	sort.Strings(types)
	for _, media := range types {
		if media != textMediaType {
			return media
		}
	}
	return textMediaType
}

// textOf reads a string value; nbformat may split it into a list of lines.
func textOf(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, ""), true
	}
	return "", false
}

func isBinaryMediaType(media string) bool {
	if media == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(media, "image/") || media == "application/pdf"
}

func findScrap(scraps []Scrap, name string) *Scrap {
	for i := range scraps {
		if scraps[i].Name == name {
			return &scraps[i]
		}
	}
	return nil
}
