package executor

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"crlf", "line1\r\nline2\r\n", "line1\nline2"},
		{"ansi color", "\x1b[31mred\x1b[0m text", "red text"},
		{"cursor movement", "\x1b[2K\x1b[1Gprogress done", "progress done"},
		{"surrounding whitespace", "  \n out \t\n", "out"},
		{"empty", "\x1b[0m \r\n ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("normalize(normalize(x)) == normalize(x)", prop.ForAll(
		func(s string) bool {
			once := Normalize(s)
			return Normalize(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestRejectionMatch(t *testing.T) {
	assert.Equal(t, "not logged in", rejectionMatch("Error: Not Logged In. Run auth.", nil))
	assert.Equal(t, "unauthorized", rejectionMatch("401 Unauthorized", nil))
	assert.Equal(t, "quota exceeded", rejectionMatch("QUOTA EXCEEDED for org", []string{"quota exceeded"}))
	assert.Equal(t, "", rejectionMatch("All good, change applied.", []string{"quota exceeded"}))
}
