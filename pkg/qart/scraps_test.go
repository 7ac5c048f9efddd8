package qart

import (
	"encoding/json"
	"strings"
	"testing"
)

const scrapsNotebook = `{
  "cells": [
    {"cell_type": "markdown", "source": ["# title"]},
    {"cell_type": "code", "outputs": [
      {"output_type": "stream", "name": "stdout", "text": ["hello\n"]},
      {"output_type": "display_data",
       "data": {"application/scrapbook.scrap.json+json": {"name": "stats", "data": {"mean": 1.5}, "encoder": "json", "version": 1}},
       "metadata": {"scrapbook": {"name": "stats", "data": true, "display": false}}},
      {"output_type": "display_data",
       "data": {"image/png": "iVBORw0K", "text/plain": ["<Figure>"]},
       "metadata": {"scrapbook": {"name": "plot", "data": false, "display": true}}}
    ]},
    {"cell_type": "code", "outputs": [
      {"output_type": "display_data",
       "data": {"application/scrapbook.scrap.json+json": {"name": "stats", "data": {"mean": 2}, "encoder": "json", "version": 1}},
       "metadata": {"scrapbook": {"name": "stats", "data": true, "display": false}}}
    ]}
  ],
  "metadata": {}, "nbformat": 4, "nbformat_minor": 4
}`

func TestReadScraps(t *testing.T) {
	scraps, err := ReadScraps(strings.NewReader(scrapsNotebook))
	if err != nil {
		t.Fatalf("ReadScraps failed: %v", err)
	}
	if len(scraps) != 2 || scraps[0].Name != "stats" || scraps[1].Name != "plot" {
		t.Fatalf("Expected stats then plot, got %+v", scraps)
	}
	if string(scraps[0].Data) != `{"mean": 2}` {
		t.Errorf("Expected the later value to win, got %s", scraps[0].Data)
	}
	if len(scraps[1].Display) != 2 {
		t.Errorf("Expected the display bundle, got %v", scraps[1].Display)
	}
}

func TestReadScrapsEmpty(t *testing.T) {
	scraps, err := ReadScraps(strings.NewReader(`{"cells": [{"cell_type": "code", "outputs": []}]}`))
	if err != nil {
		t.Fatalf("ReadScraps failed: %v", err)
	}
	if len(scraps) != 0 {
		t.Errorf("Expected no scraps, got %+v", scraps)
	}

	if _, err := ReadScraps(strings.NewReader(`[1, 2]`)); err == nil {
		t.Error("Expected an error for a non notebook document")
	}
}

func TestScrapOutput(t *testing.T) {
	data := Scrap{Name: "stats", Data: json.RawMessage(`{"mean":2}`)}
	if out := data.Output(); out.MediaType != "" || string(out.Value) != `{"mean":2}` {
		t.Errorf("Expected the data value, got %+v", out)
	}

	image := Scrap{Name: "plot", Display: map[string]json.RawMessage{
		"text/plain": json.RawMessage(`"<Figure>"`),
		"image/png":  json.RawMessage(`"aGVsbG8="`),
	}}
	if out := image.Output(); out.MediaType != "image/png" || string(out.Content) != "hello" {
		t.Errorf("Expected decoded png, got %+v", out)
	}

	text := Scrap{Name: "note", Display: map[string]json.RawMessage{
		"text/plain": json.RawMessage(`["line 1\n", "line 2"]`),
	}}
	if out := text.Output(); out.MediaType != "text/plain" || string(out.Content) != "line 1\nline 2" {
		t.Errorf("Expected joined text, got %+v", out)
	}

	table := Scrap{Name: "table", Display: map[string]json.RawMessage{
		"application/json": json.RawMessage(`{"rows":1}`),
	}}
	if out := table.Output(); out.MediaType != "application/json" || string(out.Value) != `{"rows":1}` {
		t.Errorf("Expected json display value, got %+v", out)
	}
}
