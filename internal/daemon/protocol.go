package daemon

// Newline-delimited JSON over a unix socket: each request gets exactly one
// response, and a connection may carry any number of them.

// Request ops, one per store.Store method.
const (
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpScan   = "scan"
)

// Error codes carried by failed responses so clients can restore the
// store's sentinel errors.
const (
	// CodeNotFound marks a get for an absent key.
	CodeNotFound = "not_found"
	// CodeClosed marks a request served after the store was closed.
	CodeClosed = "closed"
)

// Request is one store operation. Key and Value are base64 in JSON.
type Request struct {
	Op    string `json:"op"`
	Key   []byte `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
}

// Pair is one entry of a scan response.
type Pair struct {
	Key   []byte `json:"k"`
	Value []byte `json:"v"`
}

// Response answers a Request. Error is set when OK is false.
type Response struct {
	OK      bool   `json:"ok"`
	Value   []byte `json:"value,omitempty"`
	Entries []Pair `json:"entries,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}
