package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleCase(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"metagenome":          "Metagenome",
		"dnbseq-g400":         "Dnbseq-G400",
		"illumina hiseq 2500": "Illumina Hiseq 2500",
		"ILLUMINA NOVASEQ":    "Illumina Novaseq",
		"hiseq x10":           "Hiseq X10",
		"2x":                  "2X",
		"":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, TitleCase(in), in)
	}
}
