package types

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// RawJobRecord is a scraped listing as handed to the deduplication gate
type RawJobRecord struct {
	Source        string     `json:"source" validate:"required,max=50"`
	ExternalJobID string     `json:"external_job_id,omitempty" validate:"max=255"`
	JobURL        string     `json:"job_url" validate:"required"`
	CompanyName   string     `json:"company_name" validate:"required,max=255"`
	JobTitle      string     `json:"job_title" validate:"required,max=255"`
	Description   string     `json:"description"`
	Requirements  string     `json:"requirements,omitempty"`
	Location      string     `json:"location,omitempty" validate:"max=255"`
	SalaryMin     *int       `json:"salary_min,omitempty" validate:"omitempty,min=0"`
	SalaryMax     *int       `json:"salary_max,omitempty" validate:"omitempty,min=0"`
	PostedDate    *time.Time `json:"posted_date,omitempty"`
}

// validate caches struct metadata across calls; it is safe for concurrent use
var validate = validator.New()

// Validate checks struct tags and the salary range
func (r *RawJobRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ErrValidation{Field: fe.Field(), Message: "failed on '" + fe.Tag() + "'"}
		}
		return &ErrValidation{Field: "record", Message: err.Error()}
	}
	if r.SalaryMin != nil && r.SalaryMax != nil && *r.SalaryMin > *r.SalaryMax {
		return &ErrValidation{Field: "SalaryMin", Message: "must not exceed salary_max"}
	}
	return nil
}
