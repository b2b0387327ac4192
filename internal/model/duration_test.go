package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/dashget/internal/model"
)

func TestParseISODuration_SimpleTime(t *testing.T) {
	d, err := model.ParseISODuration("PT30S")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestParseISODuration_HoursMinutesSeconds(t *testing.T) {
	d, err := model.ParseISODuration("PT1H2M3S")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, d)
}

func TestParseISODuration_Fractional(t *testing.T) {
	d, err := model.ParseISODuration("PT3.6S")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(3.6*float64(time.Second)), d)
}

func TestParseISODuration_DateAndTimeParts(t *testing.T) {
	d, err := model.ParseISODuration("P1DT2H")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour+2*time.Hour, d)
}

func TestParseISODuration_MissingPPrefix(t *testing.T) {
	_, err := model.ParseISODuration("T30S")
	assert.Error(t, err)
}

func TestParseISODuration_Empty(t *testing.T) {
	_, err := model.ParseISODuration("")
	assert.Error(t, err)
}

func TestParseISODuration_BadUnit(t *testing.T) {
	_, err := model.ParseISODuration("PT5X")
	assert.Error(t, err)
}

func TestParseXSDDateTime_RFC3339(t *testing.T) {
	tm, err := model.ParseXSDDateTime("2020-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, 2020, tm.Year())
}

func TestParseXSDDateTime_NoTimezone(t *testing.T) {
	tm, err := model.ParseXSDDateTime("2020-01-02T03:04:05")
	require.NoError(t, err)
	assert.Equal(t, 3, tm.Hour())
}

func TestParseXSDDateTime_Invalid(t *testing.T) {
	_, err := model.ParseXSDDateTime("not-a-date")
	assert.Error(t, err)
}
