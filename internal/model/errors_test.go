package model

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindsSurviveWrapping(t *testing.T) {
	err := eris.Wrap(ErrData, "dataset: missing columns [quantity]")
	assert.True(t, eris.Is(err, ErrData))
	assert.False(t, eris.Is(err, ErrNotFound))

	err = eris.Wrapf(ErrNotFound, "churn: model artifact %s", "models/churn_model.json")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "models/churn_model.json")

	err = eris.Wrap(eris.Wrap(ErrState, "forecast: predict"), "service: tomorrow")
	assert.True(t, eris.Is(err, ErrState))
}
