package types

// FilterSummary reports what each content guard decided for a request.
type FilterSummary struct {
	Secrets   FilterAction `json:"secrets"`
	Injection FilterAction `json:"injection"`
	Policy    FilterAction `json:"policy"`
}

type FilterAction struct {
	Action     string  `json:"action"`
	Detections int     `json:"detections,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Set records an action under the named filter. Unknown names are ignored.
func (s *FilterSummary) Set(filter string, a FilterAction) {
	switch filter {
	case "secrets":
		s.Secrets = a
	case "injection":
		s.Injection = a
	case "policy":
		s.Policy = a
	}
}

// Verdict is the outcome of running the content guards over a request.
type Verdict struct {
	Blocked bool
	Filter  string
	Reason  string
	Summary FilterSummary
}
