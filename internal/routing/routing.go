// Package routing decides whether a validated document is stored directly
// or sent to the human review queue.
package routing

// Decision is the outcome of Decide.
type Decision struct {
	Status      string
	ReasonCodes []string
}

const (
	StatusValidated      = "VALIDATED"
	StatusReviewRequired = "REVIEW_REQUIRED"
)

// Decide applies the routing policy: a document goes to review if it failed
// business-rule validation, or if the model's confidence fell below
// confidenceThreshold. Either reason can apply independently; both are
// reported when both hold.
func Decide(isValid bool, modelConfidence, confidenceThreshold float64) Decision {
	var reasons []string
	if !isValid {
		reasons = append(reasons, "validation_failed")
	}
	if modelConfidence < confidenceThreshold {
		reasons = append(reasons, "low_confidence")
	}
	if len(reasons) > 0 {
		return Decision{Status: StatusReviewRequired, ReasonCodes: reasons}
	}
	return Decision{Status: StatusValidated, ReasonCodes: []string{}}
}
