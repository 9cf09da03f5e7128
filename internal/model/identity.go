package model

// VotingIdentity is one of the N independently configured signer handles.
// Key material lives behind the opaque KeyRef; this core never touches it.
type VotingIdentity struct {
	Index   int    `json:"index"` // stable and contiguous, 0..N-1
	Address string `json:"address"`
	KeyRef  string `json:"-"` // opaque signer handle passed through to the registry client
}
