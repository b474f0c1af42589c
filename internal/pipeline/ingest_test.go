package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-etl-pipeline/internal/model"
)

const sampleBatch = `[
 {"FirstName":"Anna","LastName":"Smirnova","DateOfBirth":"21.11.1985","Gender":"woman","Phone":"+7 900 111-22-33",
  "Login":"anna","Password":"p","Email":"anna@example.com","Country":"Russia","Region":"Tver"},
 {"FirstName":"Oleg","LastName":"Ivanov","DateOfBirth":"01.02.2000","Gender":"man","Phone":"+7 900 111-22-34",
  "Login":"oleg","Password":"q","Email":"oleg@example.com","Country":"Russia","Region":"Moscow"}
]`

func TestSourceClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		assert.Equal(t, "FirstName,LastName,DateOfBirth,Gender,Phone,Login,Password,Email,Country,Region",
			r.URL.Query().Get("params"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBatch))
	}))
	defer srv.Close()

	users, err := NewSourceClient(srv.Client(), srv.URL, WithCount(func() int { return 2 })).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Anna", users[0].FirstName)
	assert.Equal(t, "Moscow", users[1].Region)
}

func TestSourceClientSingleObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"FirstName":"Anna","LastName":"Smirnova","DateOfBirth":"21.11.1985","Region":"Tver"}`))
	}))
	defer srv.Close()

	users, err := NewSourceClient(srv.Client(), srv.URL, WithCount(func() int { return 1 })).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Smirnova", users[0].LastName)
}

func TestSourceClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   model.ErrorKind
	}{
		{"server error", http.StatusBadGateway, "", model.KindTransientIO},
		{"rate limited", http.StatusTooManyRequests, "", model.KindTransientIO},
		{"bad request", http.StatusBadRequest, "", model.KindDataFormat},
		{"not json", http.StatusOK, "<html>", model.KindDataFormat},
		{"wrong field type", http.StatusOK, `[{"FirstName": 5}]`, model.KindDataFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewSourceClient(srv.Client(), srv.URL).Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.kind, model.KindOf(err))
		})
	}
}

func TestSourceClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewSourceClient(http.DefaultClient, url).Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.KindTransientIO, model.KindOf(err))
}

func TestSourceClientCountBounds(t *testing.T) {
	for _, n := range []int{0, MaxRecords + 1} {
		_, err := NewSourceClient(http.DefaultClient, "http://unused", WithCount(func() int { return n })).Fetch(context.Background())
		require.Error(t, err)
		assert.Equal(t, model.KindDataFormat, model.KindOf(err))
	}

	c := NewSourceClient(http.DefaultClient, "http://unused")
	for i := 0; i < 200; i++ {
		n := c.count()
		assert.True(t, n >= 1 && n <= MaxRecords, "count %d out of range", n)
	}
}

func TestValidateRawUsers(t *testing.T) {
	good := sampleUsers()
	assert.NoError(t, ValidateRawUsers(good))

	assert.Equal(t, model.KindDataFormat, model.KindOf(ValidateRawUsers(nil)))
	assert.Error(t, ValidateRawUsers(make([]RawUser, MaxRecords+1)))

	noName := sampleUsers()
	noName[2].FirstName = ""
	err := ValidateRawUsers(noName)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
	assert.Contains(t, err.Error(), "missing required field: FirstName")

	blank := sampleUsers()
	blank[1].FirstName = "  "
	blank[1].LastName = ""
	blank[1].DateOfBirth = ""
	for i := 0; i < 20; i++ {
		err = ValidateRawUsers(blank)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "record 1: missing required field: FirstName")
	}

	padded := sampleUsers()
	padded[0].DateOfBirth = " " + padded[0].DateOfBirth + " "
	padded[1].Region = ""
	assert.NoError(t, ValidateRawUsers(padded))

	badDate := sampleUsers()
	badDate[0].DateOfBirth = "1991-03-07"
	err = ValidateRawUsers(badDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dd.mm.yyyy")
}

func TestTransformUsers(t *testing.T) {
	date, err := model.ParseLogicalDate("2024-08-14")
	require.NoError(t, err)

	recs, err := TransformUsers([]RawUser{{
		FirstName: " Anna ", LastName: "Smirnova", DateOfBirth: "21.11.1985",
		Gender: "woman", Phone: "1", Login: "anna", Password: "p", Email: "a@x", Country: "Russia", Region: "Tver",
	}}, date)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.UserRecord{
		UserName: "Anna Smirnova", DateOfBirth: "1985-11-21", DateOfRegistration: "2024-08-14",
		Phone: "1", Login: "anna", Password: "p", Email: "a@x", Gender: "woman", Country: "Russia", Region: "Tver",
	}, recs[0])

	_, err = TransformUsers([]RawUser{{DateOfBirth: "31.02.1990"}}, date)
	assert.Equal(t, model.KindDataFormat, model.KindOf(err))
}

func TestWriteUsersCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUsersCSV(&buf, []model.UserRecord{{UserName: "Anna Smirnova", Region: "Tver, Oblast"}}))
	assert.Equal(t,
		"user_name,date_of_birth,date_of_registration,phone,login,password,email,gender,country,region\n"+
			"Anna Smirnova,,,,,,,,,\"Tver, Oblast\"\n",
		buf.String())
}
