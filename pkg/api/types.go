package api

// Request/response types for the REST endpoints. 256-bit amounts are
// decimal strings; ids, addresses, and signatures are 0x-hex.

// OrderPayload is the signed order material a maker submits for
// admission. Derived fields (free amount, price, window) are computed
// server-side and never trusted from the caller.
type OrderPayload struct {
	OrderID    string `json:"orderId"`
	BookToken  string `json:"bookToken"`
	ExecToken  string `json:"execToken"`
	BookAmount string `json:"bookAmount"`
	ExecAmount string `json:"execAmount"`
	Maker      string `json:"maker"`
	Salt       string `json:"salt"`
	Signature  string `json:"signature"`
}

// OrderInfo is the full view of a resting order.
type OrderInfo struct {
	OrderID        string `json:"orderId"`
	BookToken      string `json:"bookToken"`
	ExecToken      string `json:"execToken"`
	BookAmount     string `json:"bookAmount"`
	ExecAmount     string `json:"execAmount"`
	Maker          string `json:"maker"`
	Salt           string `json:"salt"`
	Signature      string `json:"signature"`
	FreeBookAmount string `json:"freeBookAmount"`
	Price          string `json:"price"`
	Time           int64  `json:"time"`      // unix milliseconds
	StartTime      int64  `json:"startTime"` // unix milliseconds
	EndTime        int64  `json:"endTime"`   // unix milliseconds
}

// AvailableInfo reports a maker's spendable book-side quantity.
// A negative amount means the maker is over-committed.
type AvailableInfo struct {
	BookToken string `json:"bookToken"`
	Maker     string `json:"maker"`
	Available string `json:"available"`
}

// PrepareRequest asks the matcher for an execution plan.
type PrepareRequest struct {
	BookToken          string `json:"bookToken"`
	ExecToken          string `json:"execToken"`
	RequiredBookAmount string `json:"requiredBookAmount"`
	RequiredExecAmount string `json:"requiredExecAmount"`
}

// PlanInfo is a prepared execution. Plan is null when the book holds
// insufficient liquidity; that is a normal outcome, not an error.
type PlanInfo struct {
	Plan *PreparedExecutionInfo `json:"plan"`
}

// PreparedExecutionInfo mirrors book.PreparedExecution.
type PreparedExecutionInfo struct {
	BookToken              string   `json:"bookToken"`
	ExecToken              string   `json:"execToken"`
	OrderIDs               []string `json:"orderIds"`
	BookAmounts            []string `json:"bookAmounts"`
	ExecAmounts            []string `json:"execAmounts"`
	Makers                 []string `json:"makers"`
	Salts                  []string `json:"salts"`
	Signatures             []string `json:"signatures"`
	LastRequiredBookAmount string   `json:"lastRequiredBookAmount"`
}

// ReconcileRequest lists order ids to sync against the chain.
type ReconcileRequest struct {
	OrderIDs []string `json:"orderIds"`
}

// ErrorResponse carries a failure back to the caller.
type ErrorResponse struct {
	Error string `json:"error"`
}
