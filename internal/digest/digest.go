// Package digest periodically summarizes open queue state (pending
// counts per team, open manual-placement requests) and pushes the
// rendered summary through the optional notification sink.
package digest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/placement"
)

// Lister is the narrow view of the engine the digest needs.
type Lister interface {
	AllSubmissions() ([]approval.Submission, error)
}

// Sink receives the rendered digest text. internal/notify.WebhookSink
// and internal/notify.TelegramSink both satisfy it directly through
// their SendText methods.
type Sink interface {
	SendText(text string) error
}

// Digest periodically summarizes PENDING_TEAM_LEADER / PENDING_ADMIN
// counts per team, and any MANUAL_REQUESTED placements, pushing the
// rendered summary through Sink.
type Digest struct {
	lister    Lister
	placement *placement.Pipeline
	sink      Sink
	interval  time.Duration
	log       *log.Logger
}

func New(lister Lister, pipeline *placement.Pipeline, sink Sink, interval time.Duration, logger *log.Logger) *Digest {
	if logger == nil {
		logger = log.Default()
	}
	return &Digest{lister: lister, placement: pipeline, sink: sink, interval: interval, log: logger}
}

// Run blocks until ctx is cancelled. interval <= 0 disables the digest
// entirely.
func (d *Digest) Run(ctx context.Context) {
	if d.interval <= 0 || d.sink == nil {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(3 * time.Second):
	}
	for {
		d.sendOnce()
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.interval):
		}
	}
}

func (d *Digest) sendOnce() {
	subs, err := d.lister.AllSubmissions()
	if err != nil {
		d.log.Printf("digest: list submissions: %v", err)
		return
	}

	counts := map[string]map[approval.State]int{}
	for _, s := range subs {
		if s.State != approval.StatePendingTeamLeader && s.State != approval.StatePendingAdmin {
			continue
		}
		if counts[s.SubmitterTeam] == nil {
			counts[s.SubmitterTeam] = map[approval.State]int{}
		}
		counts[s.SubmitterTeam][s.State]++
	}

	var requests []placement.Request
	if d.placement != nil {
		requests, err = d.placement.OpenRequests()
		if err != nil {
			d.log.Printf("digest: open requests: %v", err)
		}
	}

	text := renderDigest(counts, requests)
	if err := d.sink.SendText(text); err != nil {
		d.log.Printf("digest: send: %v", err)
	}
}

func renderDigest(counts map[string]map[approval.State]int, requests []placement.Request) string {
	teams := make([]string, 0, len(counts))
	for t := range counts {
		teams = append(teams, t)
	}
	sort.Strings(teams)

	var b strings.Builder
	b.WriteString("Open approvals digest\n")
	for _, t := range teams {
		b.WriteString(fmt.Sprintf("%s: %d pending team leader, %d pending admin\n",
			t, counts[t][approval.StatePendingTeamLeader], counts[t][approval.StatePendingAdmin]))
	}
	if len(requests) > 0 {
		b.WriteString(fmt.Sprintf("%d manual placement requests open\n", len(requests)))
	}
	return b.String()
}
