package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/enroll"
	"github.com/amirhossein5/rollcall/internal/live"
	"github.com/amirhossein5/rollcall/internal/store"
	"github.com/amirhossein5/rollcall/internal/stream"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/amirhossein5/rollcall/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	s := store.NewMemory()
	So(s.Upsert(context.Background(), "101", "Alice", []float64{1, 0}, ""), ShouldBeNil)
	So(s.Upsert(context.Background(), "102", "Bob", []float64{0, 1}, ""), ShouldBeNil)

	pub := attendance.NewPublisher(t.TempDir(), "")
	mm := metrics.NewManager()
	srv := &server{
		ctrl:    live.New(live.Deps{Roster: s, Publisher: pub, Metrics: mm}, live.DefaultOptions()),
		frames:  stream.NewBroadcaster(0),
		store:   s,
		deleter: enroll.New(nil, s, "", pub),
		metrics: mm,
		log:     logger.Named("test"),
	}
	ts := httptest.NewServer(srv.routes())
	return ts, s
}

func do(t *testing.T, method, url string) *http.Response {
	req, err := http.NewRequest(method, url, nil)
	So(err, ShouldBeNil)
	res, err := http.DefaultClient.Do(req)
	So(err, ShouldBeNil)
	return res
}

func TestServerRoutes(t *testing.T) {
	Convey("Given the live HTTP server with no session running", t, func() {
		ts, s := newTestServer(t)
		defer ts.Close()

		Convey("The index page is served", func() {
			res := do(t, http.MethodGet, ts.URL+"/")
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(res.Header.Get("Content-Type"), ShouldStartWith, "text/html")
		})

		Convey("Commands are refused while idle", func() {
			res := do(t, http.MethodPost, ts.URL+"/control/capture")
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusConflict)
		})

		Convey("Unknown commands are a bad request", func() {
			res := do(t, http.MethodPost, ts.URL+"/control/dance")
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Status reports the idle state", func() {
			res := do(t, http.MethodGet, ts.URL+"/status")
			defer res.Body.Close()
			var st live.Status
			So(json.NewDecoder(res.Body).Decode(&st), ShouldBeNil)
			So(st.State, ShouldEqual, "idle")
		})

		Convey("The roster lists everyone in enrollment order", func() {
			res := do(t, http.MethodGet, ts.URL+"/roster")
			defer res.Body.Close()
			var got []rosterEntry
			So(json.NewDecoder(res.Body).Decode(&got), ShouldBeNil)
			So(got, ShouldResemble, []rosterEntry{{RollNo: "101", Name: "Alice"}, {RollNo: "102", Name: "Bob"}})
		})

		Convey("Deleting a student removes them once", func() {
			res := do(t, http.MethodDelete, ts.URL+"/roster/101")
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNoContent)
			So(s.Len(), ShouldEqual, 1)

			res = do(t, http.MethodDelete, ts.URL+"/roster/101")
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("Metrics are exposed", func() {
			res := do(t, http.MethodGet, ts.URL+"/metrics")
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("The camera websocket is not mounted without browser frames", func() {
			res := do(t, http.MethodGet, ts.URL+"/camera-websocket")
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}
