package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go-etl-pipeline/internal/model"
)

// sourceDateLayout is how the API renders dates of birth.
const sourceDateLayout = "02.01.2006"

// requiredFields must be non-blank in every raw record. They are checked in
// order so the first missing one is always the one reported.
var requiredFields = []struct {
	name string
	get  func(RawUser) string
}{
	{"FirstName", func(u RawUser) string { return u.FirstName }},
	{"LastName", func(u RawUser) string { return u.LastName }},
	{"DateOfBirth", func(u RawUser) string { return u.DateOfBirth }},
}

// ValidateRawUsers rejects a batch whose shape the load cannot accept. Any
// problem fails the whole batch: one snapshot per date is all or nothing.
func ValidateRawUsers(users []RawUser) error {
	if len(users) == 0 {
		return model.DataFormat("validate batch", errors.New("source returned no records"))
	}
	if len(users) > MaxRecords {
		return model.DataFormat("validate batch", fmt.Errorf("source returned %d records, max %d", len(users), MaxRecords))
	}

	var errs []error
	for i, u := range users {
		if err := validateUser(u); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return model.DataFormat("validate batch", errors.Join(errs...))
	}
	return nil
}

func validateUser(u RawUser) error {
	for _, f := range requiredFields {
		if strings.TrimSpace(f.get(u)) == "" {
			return fmt.Errorf("missing required field: %s", f.name)
		}
	}
	if _, err := time.Parse(sourceDateLayout, strings.TrimSpace(u.DateOfBirth)); err != nil {
		return fmt.Errorf("field DateOfBirth %q is not dd.mm.yyyy", u.DateOfBirth)
	}
	return nil
}
