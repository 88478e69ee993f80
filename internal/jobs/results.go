package jobs

import "encoding/json"

const (
	WalletStatusOK    = "ok"
	WalletStatusError = "error"
)

// WalletResult is the per-platform outcome recorded in the job result.
// Platform failures are independent: one platform erroring never blanks
// another platform's entry.
type WalletResult struct {
	Status     string `json:"status"`
	URL        string `json:"url,omitempty"`
	StorageKey string `json:"storageKey,omitempty"`
	ObjectID   string `json:"objectId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is the accumulating payload written to the job record after every
// pipeline step. Field presence is what lets a redelivered job skip steps it
// already completed.
type Result struct {
	QRKey        string                  `json:"qrKey,omitempty"`
	VCardKey     string                  `json:"vcardKey,omitempty"`
	CardRevision int                     `json:"cardRevision,omitempty"`
	Wallets      map[string]WalletResult `json:"wallets,omitempty"`
	EmailSent    bool                    `json:"emailSent"`
	MessageID    string                  `json:"messageId,omitempty"`
}

func (r Result) ToJSONRaw() (json.RawMessage, error) {
	b, err := json.Marshal(r)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// DecodeResult tolerates an empty result column on freshly created jobs.
func DecodeResult(raw json.RawMessage) (Result, error) {
	if len(raw) == 0 {
		return Result{}, nil
	}

	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, err
	}

	if r.Wallets == nil {
		r.Wallets = map[string]WalletResult{}
	}
	return r, nil
}

// WalletOK reports whether the given platform already produced a usable pass.
func (r Result) WalletOK(platform string) bool {
	w, ok := r.Wallets[platform]
	return ok && w.Status == WalletStatusOK
}

func (r *Result) SetWallet(platform string, w WalletResult) {
	if r.Wallets == nil {
		r.Wallets = map[string]WalletResult{}
	}
	r.Wallets[platform] = w
}
