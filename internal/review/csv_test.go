package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	t.Run("parses required columns", func(t *testing.T) {
		input := "review_id,date,rating,text\nR1,2025-01-01,4,Good\nR2,2025-01-02,2,Bad\n"
		reviews, err := ReadCSV(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, reviews, 2)
		assert.Equal(t, Review{ReviewID: "R1", Date: "2025-01-01", Rating: "4", Text: "Good"}, reviews[0])
		assert.Equal(t, "R2", reviews[1].ReviewID)
	})

	t.Run("carries extra columns into Extra", func(t *testing.T) {
		input := "review_id,date,rating,text,locale\nR1,2025-01-01,4,Good,en-US\n"
		reviews, err := ReadCSV(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, reviews, 1)
		assert.Equal(t, "en-US", reviews[0].Extra["locale"])
	})

	t.Run("rejects missing required column", func(t *testing.T) {
		input := "review_id,date,rating\nR1,2025-01-01,4\n"
		_, err := ReadCSV(strings.NewReader(input))
		assert.Error(t, err)
	})

	t.Run("rejects empty review_id", func(t *testing.T) {
		input := "review_id,date,rating,text\n,2025-01-01,4,Good\n"
		_, err := ReadCSV(strings.NewReader(input))
		assert.Error(t, err)
	})

	t.Run("rejects empty file", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""))
		assert.Error(t, err)
	})

	t.Run("tolerates column reordering", func(t *testing.T) {
		input := "text,review_id,rating,date\nGood,R1,4,2025-01-01\n"
		reviews, err := ReadCSV(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, reviews, 1)
		assert.Equal(t, "R1", reviews[0].ReviewID)
		assert.Equal(t, "Good", reviews[0].Text)
	})
}
