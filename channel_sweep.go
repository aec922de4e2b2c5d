package main

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"ooo-sentinel/lease"
)

// ChannelSweeper keeps every configured subject's push channel healthy on a
// cron schedule, so leases are renewed before they expire even if the
// external scheduler stops calling /channels/ensure.
type ChannelSweeper struct {
	leases   *lease.Manager
	cronSpec string
}

func NewChannelSweeper(leases *lease.Manager, cronSpec string) *ChannelSweeper {
	return &ChannelSweeper{leases: leases, cronSpec: cronSpec}
}

// Start schedules the sweep. A spec of "off" disables it. The returned cron
// runner is stopped when ctx is cancelled.
func (s *ChannelSweeper) Start(ctx context.Context) error {
	if s.cronSpec == "off" {
		log.Println("Channel sweep disabled")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.cronSpec, func() {
		results := s.leases.EnsureAll(ctx)
		for _, res := range results {
			if res.Error != "" {
				log.Printf("Sweep: %s %s: %s", res.SubjectID, res.Status, res.Error)
				continue
			}
			log.Printf("Sweep: %s %s", res.SubjectID, res.Status)
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}
