package jobs

type JobType string

const (
	JobIssuePass JobType = "pass.issue"
)

type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "email"
	DeliveryNone  DeliveryMethod = "none"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobIssuePass:
		return true
	default:
		return false
	}
}

func (d DeliveryMethod) IsValid() bool {
	switch d {
	case DeliveryEmail, DeliveryNone:
		return true
	default:
		return false
	}
}
