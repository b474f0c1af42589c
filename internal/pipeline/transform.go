package pipeline

import (
	"fmt"
	"strings"
	"time"

	"go-etl-pipeline/internal/model"
)

// TransformUsers normalizes a validated batch. Names are merged, the date of
// birth is rewritten as YYYY-MM-DD and every record is stamped with the
// logical date as its registration date.
func TransformUsers(users []RawUser, date model.LogicalDate) ([]model.UserRecord, error) {
	out := make([]model.UserRecord, 0, len(users))
	for i, u := range users {
		rec, err := transformUser(u, date)
		if err != nil {
			return nil, model.DataFormat("transform", fmt.Errorf("record %d: %w", i, err))
		}
		out = append(out, rec)
	}
	return out, nil
}

func transformUser(u RawUser, date model.LogicalDate) (model.UserRecord, error) {
	dob, err := time.Parse(sourceDateLayout, strings.TrimSpace(u.DateOfBirth))
	if err != nil {
		return model.UserRecord{}, err
	}
	return model.UserRecord{
		UserName:           strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName),
		DateOfBirth:        dob.Format(model.DateLayout),
		DateOfRegistration: date.String(),
		Phone:              u.Phone,
		Login:              u.Login,
		Password:           u.Password,
		Email:              u.Email,
		Gender:             u.Gender,
		Country:            u.Country,
		Region:             u.Region,
	}, nil
}
