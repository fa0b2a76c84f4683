package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

func TestParseTicketListParams(t *testing.T) {
	parse := func(query string) (TicketListParams, error) {
		return ParseTicketListParams(httptest.NewRequest(http.MethodGet, "/tickets?"+query, nil))
	}

	t.Run("no parameters", func(t *testing.T) {
		p, err := parse("")
		require.NoError(t, err)
		assert.True(t, p.Empty())
	})

	t.Run("all parameters", func(t *testing.T) {
		p, err := parse("page=2&search=%20printer%20&status=in_progress")
		require.NoError(t, err)
		require.NotNil(t, p.Page)
		assert.Equal(t, 2, *p.Page)
		assert.Equal(t, "printer", *p.Search)
		assert.Equal(t, domain.StatusInProgress, *p.Status)
	})

	t.Run("empty status clears the filter", func(t *testing.T) {
		p, err := parse("status=")
		require.NoError(t, err)
		require.NotNil(t, p.Status)
		assert.Equal(t, domain.TicketStatus(""), *p.Status)
	})

	t.Run("collects every failure", func(t *testing.T) {
		_, err := parse("page=abc&status=PENDING&search=" + strings.Repeat("x", MaxSearchLength+1))
		require.Error(t, err)

		var verrs *Errors
		require.True(t, errors.As(err, &verrs))
		assert.Equal(t, "Must be an integer", verrs.Fields["page"])
		assert.Contains(t, verrs.Fields["status"], "OPEN")
		assert.Contains(t, verrs.Fields, "search")
		assert.Equal(t,
			"validation failed: page: Must be an integer; search: Must be at most 200 characters; status: Must be one of: OPEN, IN_PROGRESS, CLOSED",
			err.Error())
	})

	t.Run("page below one", func(t *testing.T) {
		_, err := parse("page=0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page: Must be at least 1")
	})
}

func TestTicketID(t *testing.T) {
	assert.NoError(t, TicketID("T1"))
	assert.Error(t, TicketID(" "))
	assert.Error(t, TicketID(strings.Repeat("a", 129)))
}
