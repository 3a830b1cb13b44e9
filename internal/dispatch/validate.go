package dispatch

// Shared payload limits. Target-specific limits live in the adapters'
// CheckPayload hooks.
const (
	MaxContentLength = 5000
	MaxMediaCount    = 10
)

// Validation error codes shared across all targets.
const (
	ErrContentEmpty   = "content_empty"
	ErrContentTooLong = "content_too_long"
	ErrTooManyMedia   = "too_many_media"
)

// ValidationResult is the complete violation set for one payload.
// Validation never short-circuits; callers see every error at once.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// CheckPayload runs the shared pre-flight checks only.
func CheckPayload(p PublishPayload) []string {
	var errs []string
	if p.Content == "" {
		errs = append(errs, ErrContentEmpty)
	}
	if len(p.Content) > MaxContentLength {
		errs = append(errs, ErrContentTooLong)
	}
	if len(p.Media) > MaxMediaCount {
		errs = append(errs, ErrTooManyMedia)
	}
	return errs
}

// Validate runs the shared checks plus every currently-registered target's
// own CheckPayload hook, collecting all violations. Target violations are
// prefixed with the target name.
func (r *Registry) Validate(p PublishPayload) ValidationResult {
	errs := CheckPayload(p)
	for _, t := range r.snapshot() {
		for _, code := range t.pub.CheckPayload(p) {
			errs = append(errs, t.name+": "+code)
		}
	}
	if errs == nil {
		errs = []string{}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
