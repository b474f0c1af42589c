package model

import "strconv"

// UserColumns is the fixed column order of a staged users artifact and of
// the COPY into the users table.
var UserColumns = []string{
	"user_name",
	"date_of_birth",
	"date_of_registration",
	"phone",
	"login",
	"password",
	"email",
	"gender",
	"country",
	"region",
}

// AggregateColumns is the header of the regional aggregate file.
var AggregateColumns = []string{"region", "month_name", "count_user", "total_by_region"}

// UserRecord is one normalized user row. Dates are kept in DateLayout form.
type UserRecord struct {
	UserName           string `json:"user_name"`
	DateOfBirth        string `json:"date_of_birth"`
	DateOfRegistration string `json:"date_of_registration"`
	Phone              string `json:"phone"`
	Login              string `json:"login"`
	Password           string `json:"password"`
	Email              string `json:"email"`
	Gender             string `json:"gender"`
	Country            string `json:"country"`
	Region             string `json:"region"`
}

// Row projects the record onto UserColumns.
func (u UserRecord) Row() []string {
	return []string{
		u.UserName,
		u.DateOfBirth,
		u.DateOfRegistration,
		u.Phone,
		u.Login,
		u.Password,
		u.Email,
		u.Gender,
		u.Country,
		u.Region,
	}
}

// AggregateRecord is one (region, month) group of the users table.
type AggregateRecord struct {
	Region      string `json:"region"`
	MonthName   string `json:"month_name"`
	UserCount   int64  `json:"count_user"`
	RegionTotal int64  `json:"total_by_region"`
}

// Row projects the record onto AggregateColumns.
func (a AggregateRecord) Row() []string {
	return []string{
		a.Region,
		a.MonthName,
		strconv.FormatInt(a.UserCount, 10),
		strconv.FormatInt(a.RegionTotal, 10),
	}
}
