package template

// Rendered contains the final subject/body for one recipient
type Rendered struct {
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	UsedAlternate bool   `json:"used_alternate"`
}
