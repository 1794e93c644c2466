package checkout

import (
	"net/http"

	"github.com/tidwall/gjson"
)

// Outcome is the bucket a checkout response falls into.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeStockExhausted    Outcome = "stock_exhausted"
	OutcomeBadRequest        Outcome = "bad_request"
	OutcomeUnexpectedFailure Outcome = "unexpected_failure"
)

// Names of the boolean rates fed by every classified iteration.
const (
	RateSuccessfulCheckouts   = "successful_checkouts"
	RateStockExhausted        = "stock_exhausted_rate"
	RateRaceConditionFailures = "race_condition_failures"
)

// StockExhaustedError is the error text the API returns when stock ran out.
const StockExhaustedError = "Not enough stock"

// RateNames lists the outcome rates in report order.
func RateNames() []string {
	return []string{RateSuccessfulCheckouts, RateStockExhausted, RateRaceConditionFailures}
}

// rateFor maps an outcome onto the rate it marks true. Bad requests mark none.
func rateFor(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return RateSuccessfulCheckouts
	case OutcomeStockExhausted:
		return RateStockExhausted
	case OutcomeUnexpectedFailure:
		return RateRaceConditionFailures
	}
	return ""
}

// Classification is the result of reading one checkout response.
type Classification struct {
	Outcome Outcome
	// ValidJSON reports whether the body parsed as JSON.
	ValidJSON bool
	// Duplicate is set for a 200 whose body carries "duplicate": true.
	Duplicate bool
	OrderID   string
	// Error is the "error" field of a 400 body.
	Error string
}

// Classify maps a status code and raw body onto an outcome. Status 0 stands
// for a transport error or timeout.
func Classify(status int, body []byte) Classification {
	valid := len(body) > 0 && gjson.ValidBytes(body)
	c := Classification{ValidJSON: valid}

	switch status {
	case http.StatusOK:
		c.Outcome = OutcomeSuccess
		if valid {
			c.Duplicate = gjson.GetBytes(body, "duplicate").Type == gjson.True
			c.OrderID = gjson.GetBytes(body, "order_id").String()
		}
	case http.StatusBadRequest:
		c.Outcome = OutcomeBadRequest
		if valid {
			errField := gjson.GetBytes(body, "error")
			c.Error = errField.String()
			if errField.Type == gjson.String && errField.Str == StockExhaustedError {
				c.Outcome = OutcomeStockExhausted
			}
		}
	default:
		c.Outcome = OutcomeUnexpectedFailure
	}
	return c
}
