package traffic

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/okian/formwizard/internal/domain/model"
)

// Timing ranges for simulated visitors, in milliseconds.
const (
	minHesitationMS  = 300
	hesitationSpanMS = 2700
	slowFieldFactor  = 3
	maxChanges       = 4
	fieldGapMS       = 400
	rowHeightPx      = 60
	formTopPx        = 120
	formWidthPx      = 640
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// Session is the ordered event stream of one simulated visitor.
type Session struct {
	ID        string
	Abandoned bool
	Events    []model.Event
}

// Generator produces visitor sessions. It is not safe for concurrent use.
type Generator struct {
	cfg *Config
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator returns a Generator seeded from cfg.Seed.
func NewGenerator(cfg *Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{
		cfg: cfg,
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Sessions generates n sessions.
func (g *Generator) Sessions(n int) []Session {
	out := make([]Session, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Session())
	}
	return out
}

// Session generates one visitor: focus, edits and blur per field with
// pointer movement, ending in a submit or an abandon followed by page exit.
func (g *Generator) Session() Session {
	s := Session{ID: "session_" + uuid.NewString()}
	ua := userAgents[g.rnd.IntN(len(userAgents))]
	url := "https://example.com/" + g.cfg.FormID

	quitAt := -1
	if g.rnd.Float64() < g.cfg.AbandonRate {
		quitAt = g.rnd.IntN(len(g.cfg.Fields))
		s.Abandoned = true
	}

	// Spread sessions over the last hour so every heatmap range sees them.
	at := g.now().Add(-time.Duration(g.rnd.IntN(3600)) * time.Second)
	var seq int64
	emit := func(fieldID string, typ model.EventType, meta model.Metadata) {
		seq++
		meta.InteractionSequence = model.Int64(seq)
		meta.UserAgent = model.String(ua)
		meta.URL = model.String(url)
		s.Events = append(s.Events, model.Event{
			EventID:   uuid.NewString(),
			SessionID: s.ID,
			FormID:    g.cfg.FormID,
			FieldID:   fieldID,
			EventType: typ,
			Timestamp: at,
			Metadata:  meta,
		})
	}
	advance := func(ms int) { at = at.Add(time.Duration(ms) * time.Millisecond) }

	for i, field := range g.cfg.Fields {
		row := float64(formTopPx + i*rowHeightPx)
		emit("", model.EventMouseMove, model.Metadata{CursorPosition: g.cursor(row)})
		emit(field, model.EventFieldFocus, model.Metadata{})

		if i == quitAt {
			advance(g.hesitation(field))
			emit("", model.EventFormAbandon, model.Metadata{})
			emit("", model.EventPageExit, model.Metadata{})
			return s
		}

		changes := g.rnd.IntN(maxChanges + 1)
		for c := 1; c <= changes; c++ {
			advance(fieldGapMS)
			emit(field, model.EventFieldChanged, model.Metadata{ChangeCount: model.Int(c)})
		}

		hesitation := g.hesitation(field)
		advance(hesitation)
		emit(field, model.EventFieldBlur, model.Metadata{
			HesitationDuration: model.Float64(float64(hesitation)),
			ChangeCount:        model.Int(changes),
			FieldType:          model.String("text"),
			IsEmpty:            model.Bool(changes == 0),
		})
		advance(fieldGapMS)
	}

	emit("", model.EventFormSubmit, model.Metadata{})
	emit("", model.EventPageExit, model.Metadata{})
	return s
}

func (g *Generator) hesitation(field string) int {
	ms := minHesitationMS + g.rnd.IntN(hesitationSpanMS)
	if field == g.cfg.SlowField {
		ms *= slowFieldFactor
	}
	return ms
}

func (g *Generator) cursor(row float64) *model.Point {
	return model.At(float64(g.rnd.IntN(formWidthPx)), row+float64(g.rnd.IntN(rowHeightPx/2)))
}
