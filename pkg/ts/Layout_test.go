// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package ts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLayout(t *testing.T) {
	assert.Equal(t, DefaultLayout, ParseLayout("Default"))
	assert.Equal(t, Layout(time.RFC3339), ParseLayout("RFC3339"))
	assert.Equal(t, Layout("15:04"), ParseLayout("15:04"))
}

func TestLayoutFormat(t *testing.T) {
	moment := time.Date(2024, time.March, 5, 13, 14, 15, 0, time.UTC)
	assert.Equal(t, "2024-03-05 13:14:15", DefaultLayout.Format(moment))
}

func TestParseLocation(t *testing.T) {
	local, err := ParseLocation("Local")
	assert.NoError(t, err)
	assert.Equal(t, time.Local, local)

	fixed, err := ParseLocation("-5")
	assert.NoError(t, err)
	assert.Equal(t, "UTC-5", fixed.String())

	_, err = ParseLocation("")
	assert.Error(t, err)
}
