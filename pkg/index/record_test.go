package index

import (
	"strings"
	"testing"
)

func TestMarshalLine_KeyOrder(t *testing.T) {
	r := Record{
		Checksum: "abc",
		Name:     "serde",
		Vers:     "1.0.0",
	}
	line, err := r.MarshalLine()
	if err != nil {
		t.Fatal(err)
	}
	s := string(line)
	// cksum must precede name, which must precede vers, per the fixed
	// alphabetical field order.
	if strings.Index(s, `"cksum"`) > strings.Index(s, `"name"`) {
		t.Errorf("expected cksum before name: %s", s)
	}
	if strings.Index(s, `"name"`) > strings.Index(s, `"vers"`) {
		t.Errorf("expected name before vers: %s", s)
	}
}

func TestMarshalLine_DefaultSchemaVersion(t *testing.T) {
	r := Record{Name: "a", Vers: "1.0.0"}
	line, err := r.MarshalLine()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(line), `"v":1`) {
		t.Errorf("expected default schema version 1, got %s", line)
	}
}

func TestUnmarshalRecord_MissingOptionalFields(t *testing.T) {
	r, err := UnmarshalRecord([]byte(`{"name":"a","vers":"1.0.0","cksum":"x","deps":[],"features":{},"yanked":false}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "a" || r.V != 1 {
		t.Errorf("unexpected record: %+v", r)
	}
}

func TestMarshalLine_NoTrailingNewline(t *testing.T) {
	r := Record{Name: "a", Vers: "1.0.0"}
	line, err := r.MarshalLine()
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasSuffix(string(line), "\n") {
		t.Error("expected no trailing newline")
	}
}
