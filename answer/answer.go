package answer

import (
	"github.com/w-h-a/grounded/guard"
)

type Decision string

const (
	Answer Decision = "ANSWER"
	Caveat Decision = "CAVEAT"
	Refuse Decision = "REFUSE"
)

type Citation struct {
	Id      int    `json:"id"`
	Origin  string `json:"origin"`
	Excerpt string `json:"excerpt"`
	Source  string `json:"source,omitempty"`
}

// Response is everything a caller gets back for one query.
type Response struct {
	Text       string        `json:"text"`
	Citations  []Citation    `json:"citations"`
	Confidence float64       `json:"confidence"`
	Decision   Decision      `json:"decision"`
	Reasons    []string      `json:"reasons,omitempty"`
	Flagged    []string      `json:"flagged,omitempty"`
	SessionId  string        `json:"session_id"`
	Query      string        `json:"query"`
	Resolved   string        `json:"resolved_query,omitempty"`
	Class      string        `json:"class"`
	Report     *guard.Report `json:"report,omitempty"`
}
