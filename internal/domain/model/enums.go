package model

// CheckStatus summarises the outcome of one check cycle for one user.
type CheckStatus string

const (
	CheckStatusNoNewEvents CheckStatus = "no_new_events"
	CheckStatusNewEvents   CheckStatus = "new_events"
	CheckStatusBaseline    CheckStatus = "baseline" // First cycle for the user; nothing reported.
	CheckStatusFailed      CheckStatus = "failed"
)

// ErrorKind classifies per-user check failures.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindCredential    ErrorKind = "credential"     // Missing or undecryptable credential. User must re-register.
	ErrorKindAuth          ErrorKind = "auth"           // Portal rejected the credential. User must re-register.
	ErrorKindTransient     ErrorKind = "transient"      // Network, timeout or 5xx. Retried next cycle.
	ErrorKindParseDegraded ErrorKind = "parse_degraded" // Portal markup no longer matches the parser.
	ErrorKindInternal      ErrorKind = "internal"       // Local storage or dispatch failure.
)

// RequiresUserAction reports whether the user must re-register to recover.
func (k ErrorKind) RequiresUserAction() bool {
	return k == ErrorKindCredential || k == ErrorKindAuth
}
