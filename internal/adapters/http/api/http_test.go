package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/formwizard/internal/adapters/http/api"
	service "github.com/okian/formwizard/internal/app"
	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

// mockDependencies records ingested events and returns canned query results.
type mockDependencies struct {
	mu         sync.Mutex
	ingested   []model.Event
	ingestErr  error
	duplicates map[string]bool
	queryErr   error
	cleared    int

	forms    []string
	metrics  []model.FieldMetrics
	problems []model.ProblemReport
	points   []model.HeatmapPoint
	devices  []model.DeviceCount
	token    string
}

func (m *mockDependencies) Ingest(_ context.Context, ev model.Event) (service.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ingestErr != nil {
		return service.IngestResult{}, m.ingestErr
	}
	if ev.EventType == "" {
		return service.IngestResult{}, fmt.Errorf("%w: eventType is required", service.ErrInvalidEvent)
	}
	if m.duplicates[ev.EventID] {
		return service.IngestResult{Status: service.StatusDuplicate, Event: ev}, nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	m.ingested = append(m.ingested, ev)
	return service.IngestResult{Status: service.StatusAccepted, Event: ev}, nil
}

func (m *mockDependencies) GetEvents(context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingested, m.queryErr
}

func (m *mockDependencies) ClearEvents(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
	m.ingested = nil
	return m.queryErr
}

func (m *mockDependencies) ListForms(context.Context) ([]string, error) {
	return m.forms, m.queryErr
}

func (m *mockDependencies) GetFormAnalytics(context.Context, string) ([]model.FieldMetrics, error) {
	return m.metrics, m.queryErr
}

func (m *mockDependencies) IdentifyProblematicFields(context.Context, string) ([]model.ProblemReport, error) {
	return m.problems, m.queryErr
}

func (m *mockDependencies) GenerateHeatmap(_ context.Context, _ string, token string) ([]model.HeatmapPoint, error) {
	m.token = token
	return m.points, m.queryErr
}

func (m *mockDependencies) DeviceBreakdown(context.Context, string) ([]model.DeviceCount, error) {
	return m.devices, m.queryErr
}

func (m *mockDependencies) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "storedEvents": len(m.ingested)}
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Then health should expose Prometheus metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "formwizard_")
		})

		Convey("Then stats should be served as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			var stats map[string]any
			decodeBody(w, &stats)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then unknown paths should be 404", func() {
			So(do(mux, http.MethodGet, "/api/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods should be rejected", func() {
			So(do(mux, http.MethodGet, "/api/tracker/event", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(mux, http.MethodPut, "/api/events", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestTrackerHandler_HandlePostEvent(t *testing.T) {
	Convey("Given the tracker ingest route", t, func() {
		deps := &mockDependencies{duplicates: map[string]bool{"dup-1": true}}
		mux := newMux(deps)

		Convey("When posting a valid event without timestamp", func() {
			w := do(mux, http.MethodPost, "/api/tracker/event",
				`{"sessionId":"s1","formId":"signup","fieldId":"email","eventType":"fieldFocus","metadata":{}}`,
				"User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0")

			Convey("Then it should answer success with the stored event", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp struct {
					Status string      `json:"status"`
					Data   model.Event `json:"data"`
				}
				decodeBody(w, &resp)
				So(resp.Status, ShouldEqual, "success")
				So(resp.Data.FormID, ShouldEqual, "signup")
				So(resp.Data.Timestamp.IsZero(), ShouldBeFalse)
			})

			Convey("And the request User-Agent should be recorded", func() {
				So(deps.ingested, ShouldHaveLength, 1)
				So(*deps.ingested[0].Metadata.UserAgent, ShouldContainSubstring, "Chrome")
			})
		})

		Convey("When the event carries its own user agent", func() {
			w := do(mux, http.MethodPost, "/api/tracker/event",
				`{"sessionId":"s1","eventType":"formSubmit","metadata":{"userAgent":"tracker-ua"}}`,
				"User-Agent", "header-ua")

			Convey("Then the payload value should win", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(*deps.ingested[0].Metadata.UserAgent, ShouldEqual, "tracker-ua")
			})
		})

		Convey("When posting a duplicate eventId", func() {
			w := do(mux, http.MethodPost, "/api/tracker/event",
				`{"eventId":"dup-1","sessionId":"s1","eventType":"fieldBlur"}`)

			Convey("Then it should acknowledge the duplicate", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"duplicate"`)
				So(deps.ingested, ShouldBeEmpty)
			})
		})

		Convey("When posting malformed JSON", func() {
			w := do(mux, http.MethodPost, "/api/tracker/event", `{"sessionId":`)

			Convey("Then it should return bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var resp map[string]string
				decodeBody(w, &resp)
				So(resp["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When posting an event without eventType", func() {
			w := do(mux, http.MethodPost, "/api/tracker/event", `{"sessionId":"s1"}`)

			Convey("Then it should return bad request with the reason", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "eventType is required")
			})
		})

		Convey("When the ingest queue is full", func() {
			deps.ingestErr = service.ErrQueueFull
			w := do(mux, http.MethodPost, "/api/tracker/event", `{"sessionId":"s1","eventType":"fieldFocus"}`)

			Convey("Then it should return too many requests", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(w.Body.String(), ShouldContainSubstring, "backpressure")
			})
		})

		Convey("When the service is not started", func() {
			deps.ingestErr = service.ErrNotStarted
			w := do(mux, http.MethodPost, "/api/tracker/event", `{"sessionId":"s1","eventType":"fieldFocus"}`)

			Convey("Then it should return service unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})

	Convey("Given a small body limit", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.WithMaxBodyBytes(32))

		Convey("When posting a larger body", func() {
			body := `{"sessionId":"` + strings.Repeat("x", 64) + `","eventType":"fieldFocus"}`
			w := do(mux, http.MethodPost, "/api/tracker/event", body)

			Convey("Then it should return request entity too large", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(deps.ingested, ShouldBeEmpty)
			})
		})
	})
}

func TestTrackerHandler_RateLimit(t *testing.T) {
	Convey("Given an ingest rate limit with burst 2", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.WithIngestRateLimit(0.001, 2))
		body := `{"sessionId":"s1","eventType":"fieldFocus"}`

		Convey("When posting three events back to back", func() {
			codes := []int{
				do(mux, http.MethodPost, "/api/tracker/event", body).Code,
				do(mux, http.MethodPost, "/api/tracker/event", body).Code,
				do(mux, http.MethodPost, "/api/tracker/event", body).Code,
			}

			Convey("Then the third should be rate limited", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
				So(deps.ingested, ShouldHaveLength, 2)
			})
		})

		Convey("Then query routes should not be limited", func() {
			for i := 0; i < 5; i++ {
				So(do(mux, http.MethodGet, "/api/forms", "").Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestTrackerHandler_HandlePostBatch(t *testing.T) {
	Convey("Given the batch ingest route", t, func() {
		deps := &mockDependencies{duplicates: map[string]bool{"dup": true}}
		mux := newMux(deps, api.WithMaxBatchSize(3))

		Convey("When posting a mixed batch", func() {
			w := do(mux, http.MethodPost, "/api/tracker/events", `{"events":[
				{"eventId":"a","sessionId":"s1","eventType":"fieldFocus"},
				{"eventId":"dup","sessionId":"s1","eventType":"fieldFocus"},
				{"eventId":"c","sessionId":"s1"}
			]}`)

			Convey("Then each item should be reported", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp struct {
					Status     string `json:"status"`
					Accepted   int    `json:"accepted"`
					Duplicates int    `json:"duplicates"`
					Rejected   int    `json:"rejected"`
					Results    []struct {
						Status  string `json:"status"`
						EventID string `json:"eventId"`
					} `json:"results"`
				}
				decodeBody(w, &resp)
				So(resp.Status, ShouldEqual, "success")
				So(resp.Accepted, ShouldEqual, 1)
				So(resp.Duplicates, ShouldEqual, 1)
				So(resp.Rejected, ShouldEqual, 1)
				So(resp.Results[2].Status, ShouldEqual, "invalid")
				So(resp.Results[2].EventID, ShouldEqual, "c")
			})
		})

		Convey("When posting an empty batch", func() {
			w := do(mux, http.MethodPost, "/api/tracker/events", `{"events":[]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When posting more events than allowed", func() {
			var buf bytes.Buffer
			buf.WriteString(`{"events":[`)
			for i := 0; i < 4; i++ {
				if i > 0 {
					buf.WriteString(",")
				}
				buf.WriteString(`{"sessionId":"s","eventType":"fieldFocus"}`)
			}
			buf.WriteString(`]}`)
			w := do(mux, http.MethodPost, "/api/tracker/events", buf.String())

			Convey("Then the batch should be rejected whole", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "at most 3 events")
				So(deps.ingested, ShouldBeEmpty)
			})
		})

		Convey("When the queue fills up", func() {
			deps.ingestErr = service.ErrQueueFull
			w := do(mux, http.MethodPost, "/api/tracker/events", `{"events":[{"sessionId":"s","eventType":"fieldFocus"}]}`)

			Convey("Then it should answer 429 with a partial status", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(w.Body.String(), ShouldContainSubstring, `"status":"partial"`)
			})
		})
	})
}

func TestEventsHandler(t *testing.T) {
	Convey("Given stored events", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)
		So(do(mux, http.MethodPost, "/api/tracker/event", `{"sessionId":"s1","eventType":"fieldFocus"}`).Code, ShouldEqual, http.StatusOK)

		Convey("When listing events", func() {
			w := do(mux, http.MethodGet, "/api/events", "")
			var events []model.Event
			decodeBody(w, &events)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(events, ShouldHaveLength, 1)
		})

		Convey("When clearing events", func() {
			w := do(mux, http.MethodDelete, "/api/events", "")

			Convey("Then the store should be emptied and listing returns []", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.cleared, ShouldEqual, 1)
				list := do(mux, http.MethodGet, "/api/events", "")
				So(strings.TrimSpace(list.Body.String()), ShouldEqual, "[]")
			})
		})
	})
}

func TestAnalyticsHandler(t *testing.T) {
	Convey("Given canned analytics", t, func() {
		deps := &mockDependencies{
			forms: []string{"signup", "checkout"},
			metrics: []model.FieldMetrics{{
				FieldID: "email", TotalInteractions: 2, AvgHesitation: 1500,
				AbandonmentCount: 1, AbandonmentRate: 50, ChangeCount: 3,
			}},
			problems: []model.ProblemReport{{
				FieldID: "email",
				Issues:  model.Issues{HighAbandonment: true},
				Metrics: model.FieldMetrics{FieldID: "email", AbandonmentRate: 50},
			}},
			points:  []model.HeatmapPoint{{X: 10, Y: 20, Value: 2}},
			devices: []model.DeviceCount{{Device: "Desktop", Sessions: 3}},
		}
		mux := newMux(deps)

		Convey("Then forms should be listed", func() {
			var forms []string
			w := do(mux, http.MethodGet, "/api/forms", "")
			decodeBody(w, &forms)
			So(forms, ShouldResemble, []string{"signup", "checkout"})
		})

		Convey("Then field metrics should be nested per field", func() {
			w := do(mux, http.MethodGet, "/api/analytics/signup", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var out []map[string]any
			decodeBody(w, &out)
			So(out, ShouldHaveLength, 1)
			So(out[0]["fieldId"], ShouldEqual, "email")
			m := out[0]["metrics"].(map[string]any)
			So(m["totalInteractions"], ShouldEqual, 2.0)
			So(m["avgHesitation"], ShouldEqual, 1500.0)
			So(m["abandonmentRate"], ShouldEqual, 50.0)
			So(m["changeCount"], ShouldEqual, 3.0)
		})

		Convey("Then problems should include issue flags", func() {
			w := do(mux, http.MethodGet, "/api/analytics/signup/problems", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"highAbandonment":true`)
		})

		Convey("Then the heatmap should echo the applied range", func() {
			w := do(mux, http.MethodGet, "/api/analytics/signup/heatmap?range=7d", "")
			var resp struct {
				FormID string               `json:"formId"`
				Range  string               `json:"range"`
				Points []model.HeatmapPoint `json:"points"`
			}
			decodeBody(w, &resp)
			So(deps.token, ShouldEqual, "7d")
			So(resp.Range, ShouldEqual, "7d")
			So(resp.FormID, ShouldEqual, "signup")
			So(resp.Points, ShouldResemble, deps.points)

			Convey("And unknown ranges should report 24h", func() {
				w := do(mux, http.MethodGet, "/api/analytics/signup/heatmap?range=1y", "")
				decodeBody(w, &resp)
				So(resp.Range, ShouldEqual, "24h")
			})
		})

		Convey("Then devices should be served", func() {
			w := do(mux, http.MethodGet, "/api/analytics/signup/devices", "")
			So(w.Body.String(), ShouldContainSubstring, `"device":"Desktop"`)
		})

		Convey("When aggregates are empty", func() {
			deps.metrics, deps.problems, deps.points, deps.devices, deps.forms = nil, nil, nil, nil, nil

			Convey("Then every route should answer an empty list", func() {
				for _, path := range []string{"/api/forms", "/api/analytics/x", "/api/analytics/x/problems", "/api/analytics/x/devices"} {
					w := do(mux, http.MethodGet, path, "")
					So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
				}
				So(do(mux, http.MethodGet, "/api/analytics/x/heatmap", "").Body.String(), ShouldContainSubstring, `"points":[]`)
			})
		})

		Convey("When the query fails", func() {
			deps.queryErr = errors.New("boom")
			w := do(mux, http.MethodGet, "/api/analytics/signup", "")

			Convey("Then it should return internal server error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldContainSubstring, "internal_error")
			})
		})

		Convey("When the caller gives up", func() {
			deps.queryErr = context.Canceled
			w := do(mux, http.MethodGet, "/api/analytics/signup/problems", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestServer_Handler(t *testing.T) {
	Convey("Given the wrapped handler with one allowed origin", t, func() {
		deps := &mockDependencies{}
		srv := api.NewServer(deps, api.WithAllowedOrigins([]string{"https://shop.example"}))
		mux := http.NewServeMux()
		srv.Register(context.Background(), mux)
		h := srv.Handler(mux)

		Convey("When a preflight arrives from the allowed origin", func() {
			w := do(h, http.MethodOptions, "/api/tracker/event", "",
				"Origin", "https://shop.example",
				"Access-Control-Request-Method", "POST",
				"Access-Control-Request-Headers", "Content-Type")

			Convey("Then CORS headers should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://shop.example")
			})
		})

		Convey("When a request arrives from another origin", func() {
			w := do(h, http.MethodGet, "/api/forms", "", "Origin", "https://evil.example")

			Convey("Then no allow-origin header should be set", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
			})
		})

		Convey("When a handler panics", func() {
			panicky := srv.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
			w := do(panicky, http.MethodGet, "/", "")

			Convey("Then the panic should become a 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestAPI_WithService(t *testing.T) {
	Convey("Given a running service behind the API", t, func() {
		svc := service.New()
		So(svc.Start(context.Background()), ShouldBeNil)
		mux := newMux(svc)

		base := time.Now().UTC().Add(-time.Minute)
		post := func(body string) int {
			return do(mux, http.MethodPost, "/api/tracker/event", body).Code
		}
		ev := func(session, field, typ string, offset int, meta string) string {
			return fmt.Sprintf(`{"sessionId":%q,"formId":"signup","fieldId":%q,"eventType":%q,"timestamp":%q,"metadata":%s}`,
				session, field, typ, base.Add(time.Duration(offset)*time.Second).Format(time.RFC3339Nano), meta)
		}

		So(post(ev("s1", "email", "fieldFocus", 0, `{}`)), ShouldEqual, http.StatusOK)
		So(post(ev("s1", "email", "fieldBlur", 1, `{"hesitationDuration":1000}`)), ShouldEqual, http.StatusOK)
		So(post(ev("s2", "email", "fieldFocus", 2, `{}`)), ShouldEqual, http.StatusOK)
		So(post(ev("s2", "email", "fieldBlur", 3, `{"hesitationDuration":2001}`)), ShouldEqual, http.StatusOK)
		So(post(`{"sessionId":"s1","formId":"signup","eventType":"formSubmit"}`), ShouldEqual, http.StatusOK)
		svc.Stop()

		Convey("When reading the field analytics", func() {
			w := do(mux, http.MethodGet, "/api/analytics/signup", "")
			var out []struct {
				FieldID string `json:"fieldId"`
				Metrics struct {
					TotalInteractions int `json:"totalInteractions"`
					AvgHesitation     int `json:"avgHesitation"`
					AbandonmentCount  int `json:"abandonmentCount"`
					AbandonmentRate   int `json:"abandonmentRate"`
				} `json:"metrics"`
			}
			decodeBody(w, &out)

			Convey("Then the aggregates should match the posted events", func() {
				So(out, ShouldHaveLength, 1)
				So(out[0].FieldID, ShouldEqual, "email")
				So(out[0].Metrics.TotalInteractions, ShouldEqual, 2)
				So(out[0].Metrics.AvgHesitation, ShouldEqual, 1501)
				So(out[0].Metrics.AbandonmentCount, ShouldEqual, 1)
				So(out[0].Metrics.AbandonmentRate, ShouldEqual, 50)
			})

			Convey("And the field should be reported as problematic", func() {
				w := do(mux, http.MethodGet, "/api/analytics/signup/problems", "")
				So(w.Body.String(), ShouldContainSubstring, `"fieldId":"email"`)
			})
		})

		Convey("When ingesting after stop", func() {
			So(post(ev("s3", "email", "fieldFocus", 4, `{}`)), ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
