package metadata

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOperator() Operator {
	return Operator{
		ID:          "042",
		Name:        "Asha",
		Gender:      Female,
		Age:         29,
		City:        "Pune",
		State:       "Maharashtra",
		Nationality: "Indian",
		Profession:  "Engineer",
		Variation:   LipSyncing,
	}
}

func TestVariation(t *testing.T) {
	tests := []struct {
		v     Variation
		name  string
		valid bool
	}{
		{SilentSpeech, "Silent speech", true},
		{MouthOpen, "Mouth open", true},
		{LipSyncing, "Lip syncing", true},
		{VocalizedSpeech, "Vocalized speech", true},
		{0, "Variation(0)", false},
		{5, "Variation(5)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.v.String())
			assert.Equal(t, tt.valid, tt.v.Valid())
		})
	}
}

func TestParseVariation(t *testing.T) {
	tests := []struct {
		in      string
		want    Variation
		wantErr bool
	}{
		{"1", SilentSpeech, false},
		{" 4 ", VocalizedSpeech, false},
		{"mouth open", MouthOpen, false},
		{"Lip Syncing", LipSyncing, false},
		{"0", 0, true},
		{"7", 0, true},
		{"whisper", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVariation(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Operator)
		wantErr string
	}{
		{"valid", func(*Operator) {}, ""},
		{"age zero", func(o *Operator) { o.Age = 0 }, ""},
		{"age upper bound", func(o *Operator) { o.Age = 150 }, ""},
		{"optional fields empty", func(o *Operator) { o.City, o.State, o.Nationality, o.Profession = "", "", "", "" }, ""},
		{"missing name", func(o *Operator) { o.Name = "" }, "Name"},
		{"negative age", func(o *Operator) { o.Age = -1 }, "Age"},
		{"age too large", func(o *Operator) { o.Age = 151 }, "Age"},
		{"unknown gender", func(o *Operator) { o.Gender = "Unknown" }, "Gender"},
		{"missing gender", func(o *Operator) { o.Gender = "" }, "Gender"},
		{"short ID", func(o *Operator) { o.ID = "42" }, "ID"},
		{"non-numeric ID", func(o *Operator) { o.ID = "abc" }, "ID"},
		{"bad variation", func(o *Operator) { o.Variation = 9 }, "Variation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOperator()
			tt.modify(&o)
			err := o.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewSession(t *testing.T) {
	s, err := NewSession("042", MouthOpen, "hello")
	require.NoError(t, err)

	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, "042", s.OperatorID)
	assert.Equal(t, MouthOpen, s.Variation)
	assert.Equal(t, "hello", s.Label)
	assert.False(t, s.StartedAt.IsZero())

	other, err := NewSession("042", MouthOpen, "hello")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestNewSession_Invalid(t *testing.T) {
	_, err := NewSession("", MouthOpen, "x")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = NewSession("042", 0, "x")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewOperatorID(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	format := regexp.MustCompile(`^\d{3}$`)

	seen := map[string]bool{}
	var existing []string
	for range 200 {
		id, err := NewOperatorID(existing, rnd)
		require.NoError(t, err)
		assert.Regexp(t, format, id)
		assert.NotEqual(t, "000", id)
		assert.False(t, seen[id], "duplicate ID %s", id)
		seen[id] = true
		existing = append(existing, id)
	}
}

func TestNewOperatorID_Deterministic(t *testing.T) {
	a, err := NewOperatorID(nil, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	b, err := NewOperatorID(nil, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewOperatorID_LastFree(t *testing.T) {
	existing := make([]string, 0, 998)
	for n := 1; n <= 999; n++ {
		if n == 517 {
			continue
		}
		existing = append(existing, fmt.Sprintf("%03d", n))
	}

	id, err := NewOperatorID(existing, nil)
	require.NoError(t, err)
	assert.Equal(t, "517", id)
}

func TestNewOperatorID_Exhausted(t *testing.T) {
	existing := make([]string, 0, 999)
	for n := 1; n <= 999; n++ {
		existing = append(existing, fmt.Sprintf("%03d", n))
	}

	_, err := NewOperatorID(existing, nil)
	assert.ErrorIs(t, err, ErrIDSpaceExhausted)
}

func TestParseGender(t *testing.T) {
	tests := []struct {
		in      string
		want    Gender
		wantErr bool
	}{
		{"Male", Male, false},
		{"female", Female, false},
		{" OTHER ", Other, false},
		{"", "", true},
		{"robot", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGender(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
