package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to Rod protocol resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// trackerHosts are ad and analytics hosts dropped when BlockAds is on.
var trackerHosts = setOf(
	"doubleclick.net", "googlesyndication.com", "googleadservices.com",
	"google-analytics.com", "googletagmanager.com", "googletagservices.com",
	"facebook.net", "adnxs.com", "adsrvr.org", "amazon-adsystem.com",
	"criteo.com", "criteo.net", "outbrain.com", "taboola.com", "moatads.com",
	"pubmatic.com", "rubiconproject.com", "scorecardresearch.com",
	"quantserve.com", "hotjar.com", "mixpanel.com", "segment.io",
	"segment.com", "ads-twitter.com", "chartbeat.com", "optimizely.com",
	"media.net", "openx.net", "casalemedia.com", "demdex.net", "krxd.net",
	"bluekai.com", "mathtag.com", "serving-sys.com", "rlcdn.com",
	"sharethis.com", "addthis.com",
)

func setOf(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

// isTrackerHost checks a hostname and each of its parent domains.
func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := trackerHosts[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
	return false
}

// setupHijack installs a request interceptor on the page that blocks the
// given resource types and, optionally, requests to known ad/tracking
// domains. Consent-manager hosts are never blocked: the drivers need to
// click through their walls.
//
// Returns nil if there is nothing to block.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, drop := blocked[ctx.Request.Type()]; drop {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if blockAds {
			if u, err := url.Parse(ctx.Request.URL().String()); err == nil && isTrackerHost(u.Hostname()) {
				ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop().
	go router.Run()

	return router
}
