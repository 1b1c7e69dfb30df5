package spin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jamwil/terra/lib/geo"
	"github.com/jamwil/terra/lib/grid"
	"github.com/jamwil/terra/lib/journal"
	"github.com/jamwil/terra/lib/telemetry"
	"github.com/jamwil/terra/lib/timezone"
	"github.com/stretchr/testify/require"
)

// fakeRegistry emulates the three handshake endpoints plus the search
// and detail endpoints, so the state machine is testable without the
// real service's HTML shape.
type fakeRegistry struct {
	confirmSucceeds bool
	searchHTML      string
	titleHTML       string

	sawConfirmViewState string
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /logon.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form>
			<input type="hidden" name="__EVENTTARGET" value="" />
			<input type="hidden" name="__EVENTARGUMENT" value="" />
			<input type="hidden" name="__VIEWSTATE" value="state-one" />
		</form></body></html>`)
	})
	mux.HandleFunc("POST /logon.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>LEGAL NOTICE</p><form>
			<input type="hidden" name="__EVENTTARGET" value="" />
			<input type="hidden" name="__EVENTARGUMENT" value="" />
			<input type="hidden" name="__VIEWSTATE" value="state-two" />
		</form></body></html>`)
	})
	mux.HandleFunc("POST /legalnotice.aspx", func(w http.ResponseWriter, r *http.Request) {
		f.sawConfirmViewState = r.FormValue("__VIEWSTATE")
		if f.confirmSucceeds {
			fmt.Fprint(w, `<html><body>You are logged on as a Guest.</body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>Access denied.</body></html>`)
	})
	mux.HandleFunc("POST /spatialsearch.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, f.searchHTML)
	})
	mux.HandleFunc("GET /titleresults.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, f.titleHTML)
	})
	return mux
}

func newFakeClient(t *testing.T, fake *fakeRegistry) *Client {
	telemetry.SetupForTesting(t, "test:scrapers/spin")

	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseUrl = server.URL
	cfg.HandshakeDelayMs = 0
	cfg.RequestIntervalMs = 0
	cfg.RequestJitterMs = 0

	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestLoginHandshake(t *testing.T) {
	fake := &fakeRegistry{confirmSucceeds: true}
	client := newFakeClient(t, fake)

	require.Equal(t, Unauthenticated, client.State())
	err := client.Login(context.Background())
	require.NoError(t, err)
	require.Equal(t, NoticeConfirmed, client.State())

	// the confirm step must carry the view state issued by step two,
	// not the one from the login page
	require.Equal(t, "state-two", fake.sawConfirmViewState)
}

func TestLoginFailsWithoutSuccessMarker(t *testing.T) {
	client := newFakeClient(t, &fakeRegistry{confirmSucceeds: false})

	err := client.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Equal(t, Unauthenticated, client.State())
}

func TestQueryRequiresConfirmedSession(t *testing.T) {
	client := newFakeClient(t, &fakeRegistry{confirmSucceeds: true})

	_, err := client.QueryTile(context.Background(), grid.Tile{})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = client.FetchTitle(context.Background(), "12345")
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

const searchResultsHTML = `<html><body><table id="SearchResults">
	<tr><th>Id</th><th>Registration Date</th><th>Change/Cancel Date</th><th>Type</th><th>Rights</th></tr>
	<tr><td>111222333</td><td>15/03/2021</td><td></td><td>Current Title</td><td>Surface</td></tr>
	<tr><td>444555666</td><td>02/01/2019</td><td>10/10/2020</td><td>Cancelled Title</td><td>Surface</td></tr>
	<tr><td>777888999</td><td>garbage</td><td></td><td>Current Title</td><td>Mineral</td></tr>
</table></body></html>`

func testTile() grid.Tile {
	batch := grid.Generate(geo.PlanarBound{
		Southwest: geo.Point{X: 0, Y: 0},
		Northeast: geo.Point{X: 500, Y: 500},
	}, 500)
	return batch[0]
}

func TestQueryTileParsesResultsTable(t *testing.T) {
	fake := &fakeRegistry{confirmSucceeds: true, searchHTML: searchResultsHTML}
	client := newFakeClient(t, fake)
	require.NoError(t, client.Login(context.Background()))

	table, err := client.QueryTile(context.Background(), testTile())
	require.NoError(t, err)
	require.Len(t, table, 3)

	require.Equal(t, "111222333", table[0].ID)
	require.Equal(t, 2021, table[0].RegistrationDate.Year())
	require.True(t, table[0].ChangeCancelDate.IsZero())
	require.Equal(t, "Current Title", table[0].Type)
	require.Equal(t, "Surface", table[0].Rights)

	require.Equal(t, "Cancelled Title", table[1].Type)
	require.Equal(t, 2020, table[1].ChangeCancelDate.Year())

	// malformed date is tolerated locally, not fatal to the row
	require.True(t, table[2].RegistrationDate.IsZero())
	require.Equal(t, "Mineral", table[2].Rights)
}

func TestRegistryDatesAnchorInRegistryZone(t *testing.T) {
	registered := coerceDate("111222333", "registration", "10/06/2023")
	require.Equal(t, timezone.Location, registered.Location())

	// a period of the same calendar day must include the entry
	period, err := time.ParseInLocation("2006-01-02", "2023-06-10", timezone.Location)
	require.NoError(t, err)
	require.True(t, registered.Equal(period))

	due := journal.Since([]journal.Entry{{ID: "111222333", RegistrationDate: registered}}, period)
	require.Len(t, due, 1)
}

func TestQueryTileMissingTableIsAnError(t *testing.T) {
	fake := &fakeRegistry{confirmSucceeds: true, searchHTML: `<html><body><p>oops</p></body></html>`}
	client := newFakeClient(t, fake)
	require.NoError(t, client.Login(context.Background()))

	_, err := client.QueryTile(context.Background(), testTile())
	require.ErrorIs(t, err, ErrNoResultsTable)
}

func TestFetchTitleReadsPreBlock(t *testing.T) {
	fake := &fakeRegistry{
		confirmSucceeds: true,
		titleHTML:       `<html><body><pre>1234 567 890  LOT 1  890 123 456</pre></body></html>`,
	}
	client := newFakeClient(t, fake)
	require.NoError(t, client.Login(context.Background()))

	text, err := client.FetchTitle(context.Background(), "111222333")
	require.NoError(t, err)
	require.Contains(t, text, "1234 567 890")
}

func TestFetchTitleWithoutTextBlock(t *testing.T) {
	fake := &fakeRegistry{confirmSucceeds: true, titleHTML: `<html><body></body></html>`}
	client := newFakeClient(t, fake)
	require.NoError(t, client.Login(context.Background()))

	_, err := client.FetchTitle(context.Background(), "111222333")
	require.Error(t, err)
}

func TestPointString(t *testing.T) {
	s := pointString(testTile())
	require.Equal(t, "0;0;500;0;500;500;0;500;0;0;", s)
}
