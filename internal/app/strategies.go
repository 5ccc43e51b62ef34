package app

import (
	"github.com/JakeFAU/changelog-watch/internal/config"
	collyfetcher "github.com/JakeFAU/changelog-watch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/changelog-watch/internal/fetcher/headless"
	rodfetcher "github.com/JakeFAU/changelog-watch/internal/fetcher/rod"
	"github.com/JakeFAU/changelog-watch/internal/fetcher/singlefile"
	"github.com/JakeFAU/changelog-watch/internal/headless/detector"
	"github.com/JakeFAU/changelog-watch/internal/policy/ratelimit"
	"github.com/JakeFAU/changelog-watch/internal/retrieval"
)

// newRegistry registers every strategy variant. Browser-backed strategies are
// constructed only when named in retrieval.strategies.
func newRegistry(cfg config.RetrievalConfig, limiter *ratelimit.Limiter) *retrieval.Registry {
	reg := retrieval.NewRegistry()
	httpCfg := collyfetcher.Config{
		UserAgent:       cfg.UserAgent,
		AcceptLanguage:  cfg.AcceptLanguage,
		Timeout:         cfg.HTTPTimeout,
		MainContentOnly: cfg.MainContentOnly,
		Detector:        detector.NewHeuristic(0),
	}

	reg.Register(collyfetcher.NameDirect, func() (retrieval.Strategy, error) {
		return ratelimit.Wrap(collyfetcher.NewDirect(httpCfg), limiter), nil
	})
	reg.Register(collyfetcher.NameStealth, func() (retrieval.Strategy, error) {
		// The stealth variant rotates its own user agent.
		stealthCfg := httpCfg
		stealthCfg.UserAgent = ""
		return ratelimit.Wrap(collyfetcher.NewStealth(stealthCfg), limiter), nil
	})
	reg.Register(headlessfetcher.NameChromedp, func() (retrieval.Strategy, error) {
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			Headless:          cfg.Headless.Headless,
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.UserAgent,
			AcceptLanguage:    cfg.AcceptLanguage,
			NavigationTimeout: cfg.Headless.Timeout,
			IdleTimeout:       cfg.Headless.IdleTimeout,
			MainContentOnly:   cfg.MainContentOnly,
		})
		if err != nil {
			return nil, err
		}
		return ratelimit.Wrap(f, limiter), nil
	})
	reg.Register(rodfetcher.Name, func() (retrieval.Strategy, error) {
		return ratelimit.Wrap(rodfetcher.New(rodfetcher.Config{
			Headless:        cfg.Rod.Headless,
			Bin:             cfg.Rod.Bin,
			ControlURL:      cfg.Rod.ControlURL,
			Timeout:         cfg.Rod.Timeout,
			IdleTimeout:     cfg.Rod.IdleTimeout,
			UserAgent:       cfg.UserAgent,
			AcceptLanguage:  cfg.AcceptLanguage,
			MainContentOnly: cfg.MainContentOnly,
		}), limiter), nil
	})
	reg.Register(singlefile.Name, func() (retrieval.Strategy, error) {
		return ratelimit.Wrap(singlefile.New(singlefile.Config{
			Path:            cfg.SingleFile.Path,
			CookiesFile:     cfg.SingleFile.CookiesFile,
			Timeout:         cfg.SingleFile.Timeout,
			Headless:        cfg.SingleFile.Headless,
			MainContentOnly: cfg.MainContentOnly,
		}), limiter), nil
	})
	return reg
}
