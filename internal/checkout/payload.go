package checkout

import "time"

// Request is the body of POST /checkout.
type Request struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// RunContext is produced by Setup and handed to Teardown.
type RunContext struct {
	StartTime time.Time
}
