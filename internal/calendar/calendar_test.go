package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/nhle/bdaycal/internal/model"
	"github.com/nhle/bdaycal/internal/source"
)

var alice = model.Record{Description: "Alice's Birthday", Date: "25/06/1990"}

// fakeCalendarAPI answers events.list from canned pages and records inserts.
type fakeCalendarAPI struct {
	mu       sync.Mutex
	pages    [][]*gcal.Event
	queries  []map[string]string
	inserted []*gcal.Event
	status   int
	authz    []string
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authz = append(f.authz, r.Header.Get("Authorization"))

	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"nope"}}`, f.status)
		return
	}

	if !strings.HasSuffix(r.URL.Path, "/events") {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		q["path"] = r.URL.Path
		f.queries = append(f.queries, q)

		idx, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
		resp := &gcal.Events{}
		if idx < len(f.pages) {
			resp.Items = f.pages[idx]
		}
		if idx+1 < len(f.pages) {
			resp.NextPageToken = strconv.Itoa(idx + 1)
		}
		_ = json.NewEncoder(w).Encode(resp)

	case http.MethodPost:
		var ev gcal.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		f.inserted = append(f.inserted, &ev)
		ev.Id = "evt-1"
		_ = json.NewEncoder(w).Encode(&ev)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestService(t *testing.T, api *fakeCalendarAPI) *Service {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return svc
}

func TestEventExists_QueriesOneDayWindow(t *testing.T) {
	api := &fakeCalendarAPI{}
	svc := newTestService(t, api)

	found, err := svc.EventExists(context.Background(), "primary", alice)
	require.NoError(t, err)
	assert.False(t, found)

	require.Len(t, api.queries, 1)
	q := api.queries[0]
	assert.Equal(t, "1990-06-25T00:00:00Z", q["timeMin"])
	assert.Equal(t, "1990-06-26T00:00:00Z", q["timeMax"])
	assert.Equal(t, "true", q["singleEvents"])
	assert.Equal(t, "startTime", q["orderBy"])
	assert.Contains(t, q["path"], "/calendars/primary/events")
}

func TestEventExists_MatchesExactSummary(t *testing.T) {
	api := &fakeCalendarAPI{pages: [][]*gcal.Event{{
		{Summary: "alice's birthday"},
		{Summary: "Alice's Birthday "},
		{Summary: "Alice's Birthday"},
	}}}
	svc := newTestService(t, api)

	found, err := svc.EventExists(context.Background(), "primary", alice)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestEventExists_NearMissesDoNotCount(t *testing.T) {
	api := &fakeCalendarAPI{pages: [][]*gcal.Event{{
		{Summary: "alice's birthday"},
		{Summary: " Alice's Birthday"},
	}}}
	svc := newTestService(t, api)

	found, err := svc.EventExists(context.Background(), "primary", alice)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEventExists_FollowsPages(t *testing.T) {
	api := &fakeCalendarAPI{pages: [][]*gcal.Event{
		{{Summary: "Dentist"}},
		{{Summary: "Alice's Birthday"}},
	}}
	svc := newTestService(t, api)

	found, err := svc.EventExists(context.Background(), "primary", alice)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, api.queries, 2)
}

func TestCreateEvent_AllDayYearly(t *testing.T) {
	api := &fakeCalendarAPI{}
	svc := newTestService(t, api)

	require.NoError(t, svc.CreateEvent(context.Background(), "primary", alice))

	require.Len(t, api.inserted, 1)
	ev := api.inserted[0]
	assert.Equal(t, "Alice's Birthday", ev.Summary)
	require.NotNil(t, ev.Start)
	require.NotNil(t, ev.End)
	assert.Equal(t, "1990-06-25", ev.Start.Date)
	assert.Empty(t, ev.Start.DateTime)
	assert.Equal(t, "1990-06-26", ev.End.Date)
	assert.Equal(t, []string{"RRULE:FREQ=YEARLY"}, ev.Recurrence)
}

func TestMalformedDateIsParseError(t *testing.T) {
	api := &fakeCalendarAPI{}
	svc := newTestService(t, api)
	bad := model.Record{Description: "Bob", Date: "1990-06-25"}

	_, err := svc.EventExists(context.Background(), "primary", bad)
	assert.True(t, source.IsParseError(err))

	err = svc.CreateEvent(context.Background(), "primary", bad)
	assert.True(t, source.IsParseError(err))

	assert.Empty(t, api.queries)
	assert.Empty(t, api.inserted)
}

func TestAPIErrors(t *testing.T) {
	api := &fakeCalendarAPI{status: http.StatusUnauthorized}
	svc := newTestService(t, api)

	_, err := svc.EventExists(context.Background(), "primary", alice)
	assert.True(t, source.IsAuthError(err), "401 should be an auth error: %v", err)

	api.mu.Lock()
	api.status = http.StatusNotFound
	api.mu.Unlock()

	err = svc.CreateEvent(context.Background(), "primary", alice)
	assert.True(t, source.IsTransportError(err), "404 should be a transport error: %v", err)
}
