package checkout

import (
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const (
	CheckStatusOK       = "status is 200"
	CheckResponseTime   = "response time < 2000ms"
	CheckSuccessMessage = "has success message"

	responseTimeLimit = 2 * time.Second
)

var successMessages = map[string]bool{
	"Checkout successful":     true,
	"Order already processed": true,
}

type CheckResult struct {
	Name string
	Pass bool
}

// EvaluateChecks runs the three response checks. They are independent of
// the outcome classification.
func EvaluateChecks(status int, latency time.Duration, body []byte) []CheckResult {
	return []CheckResult{
		{Name: CheckStatusOK, Pass: status == http.StatusOK},
		{Name: CheckResponseTime, Pass: latency < responseTimeLimit},
		{Name: CheckSuccessMessage, Pass: hasSuccessMessage(body)},
	}
}

func hasSuccessMessage(body []byte) bool {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return false
	}
	msg := gjson.GetBytes(body, "message")
	return msg.Type == gjson.String && successMessages[msg.Str]
}
