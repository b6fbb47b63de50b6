package drivers

import (
	"context"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

// RodLauncher adapts scraper.SessionManager to Launcher.
type RodLauncher struct {
	Manager *scraper.SessionManager
}

// Open implements Launcher.
func (l RodLauncher) Open(ctx context.Context, cfg models.SessionConfig) (Browser, error) {
	s, err := l.Manager.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return rodBrowser{s}, nil
}

type rodBrowser struct {
	s *scraper.Session
}

func (b rodBrowser) NewPage(ctx context.Context, block bool) (Page, error) {
	p, err := b.s.NewPage(ctx, block)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (b rodBrowser) Close() error {
	return b.s.Close()
}
