package devserver

import (
	"fmt"
	"math/rand/v2"

	"github.com/robfig/cron/v3"

	"github.com/nhle/memberdesk/internal/model"
)

var sampleNotifications = []struct {
	category model.Category
	body     string
	ref      *model.Ref
}{
	{model.CategoryInfo, "New member registration awaiting review", nil},
	{model.CategorySuccess, "Annual dues payment received", &model.Ref{Type: model.RefDue, ID: 42}},
	{model.CategoryWarning, "Dues reminder: payment overdue", &model.Ref{Type: model.RefDue, ID: 17}},
	{model.CategoryInfo, "Activity schedule updated", &model.Ref{Type: model.RefActivity, ID: 8}},
	{model.CategoryError, "Card payment was declined", &model.Ref{Type: model.RefDue, ID: 23}},
}

var sampleMessages = []string{
	"Can you confirm the room booking for Saturday?",
	"The treasurer report is ready.",
	"Reminder: board meeting tonight at 7.",
}

// Generator pushes synthetic items on a cron schedule so a running client
// sees alerts arrive.
type Generator struct {
	server *Server
	cron   *cron.Cron
}

// NewGenerator schedules a synthetic item every interval, given in cron
// "@every" form (e.g. "@every 30s").
func NewGenerator(s *Server, schedule string) (*Generator, error) {
	g := &Generator{
		server: s,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := g.cron.AddFunc(schedule, g.tick); err != nil {
		return nil, fmt.Errorf("scheduling generator %q: %w", schedule, err)
	}
	return g, nil
}

// Start begins generating.
func (g *Generator) Start() { g.cron.Start() }

// Stop halts the schedule.
func (g *Generator) Stop() { <-g.cron.Stop().Done() }

func (g *Generator) tick() {
	if rand.IntN(3) == 0 {
		item := g.server.Push(model.FeedMessages, model.FeedItem{
			Category: model.CategoryAdmin,
			Sender:   "Secretariat",
			Body:     sampleMessages[rand.IntN(len(sampleMessages))],
		})
		g.server.log.Infow("generated message", "id", item.ID)
		return
	}
	n := sampleNotifications[rand.IntN(len(sampleNotifications))]
	item := g.server.Push(model.FeedNotifications, model.FeedItem{
		Category: n.category,
		Body:     n.body,
		Ref:      n.ref,
	})
	g.server.log.Infow("generated notification", "id", item.ID, "category", item.Category)
}
