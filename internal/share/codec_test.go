package share

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T, maxBytes int) *Codec {
	t.Helper()
	c, err := NewCodec(maxBytes)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newCodec(t, 0)
	inputs := []string{
		`eq(donor.gender,"male")`,
		`select(*),and(in(donor.projectId,"BRCA-US","LIHC-US"),gt(donor.ageAtDiagnosis,40)),facets(*),sort(-donor.ageAtDiagnosis),limit(10,20)`,
		"",
		strings.Repeat(`in(gene.id,"ENSG00000141510"),`, 200) + "limit(10)",
	}
	for _, in := range inputs {
		token, err := c.Encode(in)
		require.NoError(t, err)
		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")
		assert.NotContains(t, token, "=")

		out, err := c.Decode(token)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCodec_Compresses(t *testing.T) {
	c := newCodec(t, 0)
	in := strings.Repeat(`eq(donor.gender,"male"),`, 100)
	token, err := c.Encode(in)
	require.NoError(t, err)
	assert.Less(t, len(token), len(in)/4)
}

func TestCodec_DecodeErrors(t *testing.T) {
	c := newCodec(t, 0)

	_, err := c.Decode("")
	assert.ErrorIs(t, err, ErrEmptyToken)

	_, err = c.Decode("not base64!")
	assert.Error(t, err)

	_, err = c.Decode("aGVsbG8")
	assert.Error(t, err, "valid base64 but not zstd")
}

func TestCodec_SizeLimit(t *testing.T) {
	small := newCodec(t, 64)
	big := newCodec(t, 0)

	_, err := small.Encode(strings.Repeat("x", 65))
	assert.ErrorIs(t, err, ErrTooLarge)

	token, err := big.Encode(strings.Repeat("x", 4096))
	require.NoError(t, err)
	_, err = small.Decode(token)
	assert.Error(t, err)
}
