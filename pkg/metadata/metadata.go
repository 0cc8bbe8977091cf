package metadata

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrInvalid is matched by every metadata validation failure.
	ErrInvalid = errors.New("invalid metadata")
	// ErrIDSpaceExhausted is returned when every operator ID is taken.
	ErrIDSpaceExhausted = errors.New("operator ID space exhausted")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Variation identifies how the operator produced the recorded utterance.
type Variation int

const (
	SilentSpeech    Variation = 1
	MouthOpen       Variation = 2
	LipSyncing      Variation = 3
	VocalizedSpeech Variation = 4
)

// Variations lists all variation codes in ascending order.
var Variations = []Variation{SilentSpeech, MouthOpen, LipSyncing, VocalizedSpeech}

func (v Variation) String() string {
	switch v {
	case SilentSpeech:
		return "Silent speech"
	case MouthOpen:
		return "Mouth open"
	case LipSyncing:
		return "Lip syncing"
	case VocalizedSpeech:
		return "Vocalized speech"
	default:
		return fmt.Sprintf("Variation(%d)", int(v))
	}
}

// Valid reports whether v is a known variation code.
func (v Variation) Valid() bool {
	return v >= SilentSpeech && v <= VocalizedSpeech
}

// ParseVariation accepts a numeric code ("2") or a name ("mouth open").
func ParseVariation(s string) (Variation, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		v := Variation(n)
		if !v.Valid() {
			return 0, fmt.Errorf("%w: unknown variation code %d", ErrInvalid, n)
		}
		return v, nil
	}
	for _, v := range Variations {
		if strings.EqualFold(v.String(), s) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown variation %q", ErrInvalid, s)
}

// Gender of an operator.
type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
	Other  Gender = "Other"
)

// ParseGender accepts a gender name in any case.
func ParseGender(s string) (Gender, error) {
	for _, g := range []Gender{Male, Female, Other} {
		if strings.EqualFold(string(g), strings.TrimSpace(s)) {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: unknown gender %q", ErrInvalid, s)
}

// Operator describes the person a session is recorded from.
type Operator struct {
	ID          string    `json:"id" validate:"required,len=3,numeric"`
	Name        string    `json:"name" validate:"required"`
	Gender      Gender    `json:"gender" validate:"required,oneof=Male Female Other"`
	Age         int       `json:"age" validate:"gte=0,lte=150"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Nationality string    `json:"nationality"`
	Profession  string    `json:"profession"`
	Variation   Variation `json:"variation" validate:"gte=1,lte=4"`
}

// Validate checks the operator details.
func (o Operator) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: operator: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: operator: %w", ErrInvalid, err)
	}
	return nil
}

// Session is the context a capture is recorded under.
type Session struct {
	ID         string
	OperatorID string
	Variation  Variation
	Label      string
	StartedAt  time.Time
}

// NewSession creates a session context with a fresh ID.
func NewSession(operatorID string, variation Variation, label string) (Session, error) {
	if operatorID == "" {
		return Session{}, fmt.Errorf("%w: operator ID is required", ErrInvalid)
	}
	if !variation.Valid() {
		return Session{}, fmt.Errorf("%w: unknown variation code %d", ErrInvalid, int(variation))
	}
	return Session{
		ID:         NewSessionID(),
		OperatorID: operatorID,
		Variation:  variation,
		Label:      label,
		StartedAt:  time.Now(),
	}, nil
}

// NewSessionID returns a new random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// maxOperatorID is the largest 3-digit operator ID.
const maxOperatorID = 999

// NewOperatorID picks a random unused ID from 001..999. A nil rnd uses the
// global source.
func NewOperatorID(existing []string, rnd *rand.Rand) (string, error) {
	taken := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		taken[id] = struct{}{}
	}

	free := make([]string, 0, maxOperatorID)
	for n := 1; n <= maxOperatorID; n++ {
		id := fmt.Sprintf("%03d", n)
		if _, ok := taken[id]; !ok {
			free = append(free, id)
		}
	}
	if len(free) == 0 {
		return "", ErrIDSpaceExhausted
	}

	var i int
	if rnd != nil {
		i = rnd.IntN(len(free))
	} else {
		i = rand.IntN(len(free))
	}
	return free[i], nil
}
