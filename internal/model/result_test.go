package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRedirectDomainJSON(t *testing.T) {
	empty, err := json.Marshal(RedirectDomain(""))
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if string(empty) != "false" {
		t.Errorf("empty RedirectDomain marshals to %s, want false", empty)
	}

	set, err := json.Marshal(RedirectDomain("other.example"))
	if err != nil {
		t.Fatalf("marshal set: %v", err)
	}
	if string(set) != `"other.example"` {
		t.Errorf("set RedirectDomain marshals to %s, want \"other.example\"", set)
	}

	var back RedirectDomain
	if err := json.Unmarshal([]byte("false"), &back); err != nil {
		t.Fatalf("unmarshal false: %v", err)
	}
	if back != "" {
		t.Errorf("unmarshal false = %q, want empty", back)
	}
	if err := json.Unmarshal([]byte(`"host.example"`), &back); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if back != "host.example" {
		t.Errorf("unmarshal string = %q, want host.example", back)
	}
}

func TestScrapeResultJSON(t *testing.T) {
	res := ScrapeResult{
		Domain:      "example.com",
		StatusCode:  StatusComplete,
		IP:          []string{"93.184.216.34"},
		Obfuscation: true,
		ScriptPaths: []string{"/app.js"},
		HTMLContent: "<html></html>",
		Processor:   "scraperd-1",
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)

	for _, want := range []string{
		`"status_code":"complete"`,
		`"script_paths":["/app.js"]`,
		`"redirect_domain":false`,
		`"html_content":"\u003chtml\u003e\u003c/html\u003e"`,
		`"processor":"scraperd-1"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("serialized result missing %s:\n%s", want, s)
		}
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("empty error should be omitted:\n%s", s)
	}
}

func TestScrapeResultJSON_UnresolvedIPIsNull(t *testing.T) {
	res := ScrapeResult{Domain: "down.example", StatusCode: StatusDNSError}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"ip":null`) {
		t.Errorf("unresolved IP should serialize as null:\n%s", data)
	}
}
