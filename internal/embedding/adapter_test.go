package embedding

import (
	"encoding/json"
	"testing"
)

func TestAdapterFor(t *testing.T) {
	for _, family := range []string{"openai", "siliconflow", "zhipu"} {
		if _, err := AdapterFor(family); err != nil {
			t.Errorf("AdapterFor(%q): %v", family, err)
		}
	}
	if _, err := AdapterFor("unknown"); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestBuildRequest_EncodingFormat(t *testing.T) {
	toMap := func(v any) map[string]any {
		b, _ := json.Marshal(v)
		var m map[string]any
		json.Unmarshal(b, &m)
		return m
	}
	openai := toMap(openaiAdapter{}.BuildRequest("m", []string{"x"}))
	if openai["encoding_format"] != "float" {
		t.Error("openai request should set encoding_format")
	}
	zhipu := toMap(zhipuAdapter{}.BuildRequest("m", []string{"x"}))
	if _, ok := zhipu["encoding_format"]; ok {
		t.Error("zhipu request must not set encoding_format")
	}
}

func TestParseDataEmbeddings_IndexOrder(t *testing.T) {
	// Providers may return data out of order; the index field is binding.
	body := []byte(`{"data":[
		{"embedding":[2,2],"index":1},
		{"embedding":[1,1],"index":0}
	]}`)
	vecs, err := parseDataEmbeddings(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("index order not honored: %v", vecs)
	}
}

func TestParseDataEmbeddings_Errors(t *testing.T) {
	if _, err := parseDataEmbeddings([]byte(`{"data":[]}`)); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := parseDataEmbeddings([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := parseDataEmbeddings([]byte(`{"data":[{"embedding":[1],"index":5}]}`)); err == nil {
		t.Error("expected error for out-of-range index")
	}
}
