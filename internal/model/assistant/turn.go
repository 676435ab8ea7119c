package assistant

// Turn is one query/answer exchange. It lives only while the turn runs.
type Turn struct {
	Seq              int64
	Query            string
	RetrievedContext string
	Answer           string
	Audio            []byte
	AudioFormat      string
}

// Grounded reports whether retrieval contributed any passages.
func (t Turn) Grounded() bool {
	return t.RetrievedContext != ""
}
