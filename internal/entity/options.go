package entity

// Options are the creator's choices for a new session. Answers and Cells only
// apply to the reveal variant.
type Options struct {
	Answers []string `json:"answers,omitempty"`
	Cells   int      `json:"cells,omitempty"`
}
