package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOptionalCountDistinguishesAbsentFromZero(t *testing.T) {
	var s Sample
	in := `{"agent_id":"a","timestamp":"2026-01-01T00:00:00Z","syn_count":0,"unique_dst_ports":null}`
	if err := json.Unmarshal([]byte(in), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !s.SynCount.Valid || s.SynCount.N != 0 {
		t.Fatalf("syn_count = %+v, want observed zero", s.SynCount)
	}
	if s.UniqueDstPorts.Valid {
		t.Fatalf("unique_dst_ports = %+v, want absent", s.UniqueDstPorts)
	}

	var missing Sample
	_ = json.Unmarshal([]byte(`{"agent_id":"a"}`), &missing)
	if missing.SynCount.Valid {
		t.Fatal("omitted field decoded as observed")
	}

	out, err := json.Marshal(Sample{AgentID: "a", SynCount: Count(7)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"syn_count":7`) || !strings.Contains(string(out), `"unique_dst_ports":null`) {
		t.Fatalf("encoded = %s", out)
	}
}

func TestOptionalCountNumberForms(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{`600`, 600, true},
		{`600.0`, 600, true},
		{`6e2`, 600, true},
		{`-0.0`, 0, true},
		{`600.5`, 0, false},
		{`1e300`, 0, false},
		{`"abc"`, 0, false},
		{`true`, 0, false},
	}
	for _, tc := range cases {
		var c OptionalCount
		err := json.Unmarshal([]byte(tc.in), &c)
		if tc.ok {
			if err != nil || !c.Valid || c.N != tc.want {
				t.Fatalf("%s: got %+v, %v; want %d", tc.in, c, err, tc.want)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%s: expected error, got %+v", tc.in, c)
		}
	}
}
