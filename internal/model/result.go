// internal/model/result.go
package model

import (
	"encoding/json"
	"time"
)

// Status classifies the terminal outcome of one scrape session.
type Status string

const (
	StatusDNSError  Status = "DNS Error"
	StatusTimeout   Status = "Timeout"
	StatusCancelled Status = "Cancelled"
	StatusFailed    Status = "Failed"
	StatusComplete  Status = "complete"
	StatusLoading   Status = "loading"
)

// ScrapeTask is one unit of work pulled from the inbound topic.
// A task is owned by exactly one session from creation until its
// result is produced.
type ScrapeTask struct {
	Domain    string
	StartedAt time.Time
}

// RedirectDomain is the host the page landed on when navigation crossed
// to a different registrable domain. The zero value means no cross-domain
// redirect and serializes as the JSON literal false.
type RedirectDomain string

// MarshalJSON implements json.Marshaler.
func (r RedirectDomain) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("false"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RedirectDomain) UnmarshalJSON(data []byte) error {
	if string(data) == "false" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = RedirectDomain(s)
	return nil
}

// ScrapeResult is the sole externally visible artifact of a session.
// Exactly one is produced per inbound message, on every exit path.
// It is immutable once produced; the dispatcher only stamps Processor
// before publishing.
type ScrapeResult struct {
	Domain         string         `json:"domain"`
	StatusCode     Status         `json:"status_code"`
	IP             []string       `json:"ip"` // null when never resolved
	Obfuscation    bool           `json:"obfuscation"`
	ScriptPaths    []string       `json:"script_paths"`
	RedirectDomain RedirectDomain `json:"redirect_domain"`
	HTMLContent    string         `json:"html_content"`
	Error          string         `json:"error,omitempty"`
	Processor      string         `json:"processor,omitempty"`
}
