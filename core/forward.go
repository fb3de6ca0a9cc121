package core

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// forwardAll invokes fn for every ganglion in targets concurrently, logging
// (rather than propagating) individual failures: one uncooperative peer
// transport must not abort delivery to the others.
func forwardAll(targets []Ganglion, fn func(Ganglion) error) {
	var g errgroup.Group
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := fn(target); err != nil {
				log.Warnf("plexus: forward failed: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
