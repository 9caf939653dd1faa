package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		temporary bool
		permanent bool
		policy    string
		want      Verdict
	}{
		{"Clean", false, false, PolicyAbort, Verdict{Ack: true}},
		{"Temporary", true, false, PolicyAbort, Verdict{}},
		{"TemporaryDeadLetter", true, false, PolicyDeadLetter, Verdict{}},
		{"PermanentAbort", false, true, PolicyAbort, Verdict{Abort: true}},
		{"BothAbort", true, true, PolicyAbort, Verdict{Abort: true}},
		{"PermanentDeadLetter", false, true, PolicyDeadLetter, Verdict{Ack: true, DeadLetter: true}},
		{"BothDeadLetter", true, true, PolicyDeadLetter, Verdict{DeadLetter: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.temporary, tt.permanent, tt.policy))
		})
	}
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "ack", Verdict{Ack: true}.String())
	assert.Equal(t, "nack", Verdict{}.String())
	assert.Equal(t, "nack+abort", Verdict{Abort: true}.String())
	assert.Equal(t, "ack+dead-letter", Verdict{Ack: true, DeadLetter: true}.String())
}

func TestNormalizePolicy(t *testing.T) {
	p, err := normalizePolicy("")
	assert.NoError(t, err)
	assert.Equal(t, PolicyAbort, p)

	_, err = normalizePolicy("ignore")
	assert.Error(t, err)
}
