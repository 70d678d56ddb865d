package constants

// Scope identifies one processing lane in the ledger: an extractor or the
// categorization pass. Stable values (store these exact strings in DB).
type Scope string

const (
	ScopeInvoices   Scope = "invoices"
	ScopeConcerts   Scope = "concerts"
	ScopeCategories Scope = "categories"
	ScopeSummaries  Scope = "summaries"
	ScopeTasks      Scope = "tasks"
)

// RecordStatus is the terminal state of one (email, extractor) pass.
type RecordStatus string

const (
	StatusAccepted RecordStatus = "ACCEPTED" // model confirmed and fields extracted
	StatusRejected RecordStatus = "REJECTED" // model looked and said no (or parse came back empty)
	StatusFailed   RecordStatus = "FAILED"   // model call or processing error
)

// Fallback categorization used whenever the model emits a pair outside the
// configured vocabulary.
const (
	FallbackCategory    = "Other"
	FallbackSubcategory = "Rest"
	FallbackConfidence  = 0.1
)
