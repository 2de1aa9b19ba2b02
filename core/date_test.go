package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Birth Date  `json:"birth"`
		Due   *Date `json:"due"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"birth":"2018-03-01","due":null}`), &payload))
	assert.Equal(t, NewDate(2018, time.March, 1), payload.Birth)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"birth":"2018-03-01","due":null}`, string(out))

	out, err = json.Marshal(Date{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"birth":"01/03/2018"}`), &payload))
}

func TestDate_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     interface{}
		want    Date
		wantErr bool
	}{
		{name: "nil", src: nil},
		{name: "time", src: time.Date(2024, time.May, 2, 23, 10, 0, 0, time.UTC), want: NewDate(2024, time.May, 2)},
		{name: "string", src: "2024-05-02", want: NewDate(2024, time.May, 2)},
		{name: "bytes", src: []byte("2024-05-02"), want: NewDate(2024, time.May, 2)},
		{name: "int", src: 12, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			err := d.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestDate_helpers(t *testing.T) {
	d := NewDate(2024, time.January, 31)
	assert.Equal(t, "2024-01", d.RefMonth())
	assert.Equal(t, "2024-02-01", d.AddDays(1).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, "", Date{}.String())

	v, err := Date{}.Value()
	assert.NoError(t, err)
	assert.Nil(t, v)

	assert.Equal(t, 29, LastDayOfMonth(2024, time.February))
	assert.Equal(t, 28, LastDayOfMonth(2025, time.February))
	assert.Equal(t, 31, LastDayOfMonth(2025, time.December))
}

func TestAgeOn(t *testing.T) {
	birth := NewDate(2018, time.June, 15)
	assert.Equal(t, 6, AgeOn(birth, NewDate(2025, time.June, 14)))
	assert.Equal(t, 7, AgeOn(birth, NewDate(2025, time.June, 15)))
	assert.Equal(t, 7, AgeOn(birth, NewDate(2026, time.January, 1)))
}

func TestToday(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	now := time.Date(2025, time.March, 1, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, NewDate(2025, time.February, 28), Today(now, loc))
	assert.Equal(t, NewDate(2025, time.March, 1), Today(now, nil))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "abc", CleanString("  ABC ", true))
	assert.Equal(t, "ABC", CleanString("  ABC "))
	assert.Equal(t, "5511912345678", DigitsOnly("+55 (11) 91234-5678"))
	assert.Equal(t, "Mãos", Truncate("Mãos Ajudadoras", 4))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 10))
}
