package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockSet maps config names (plural) to CDP resource types.
func blockSet(types []string) map[proto.NetworkResourceType]bool {
	set := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "images", "image":
			set[proto.NetworkResourceTypeImage] = true
		case "fonts", "font":
			set[proto.NetworkResourceTypeFont] = true
		case "media":
			set[proto.NetworkResourceTypeMedia] = true
		case "stylesheets", "stylesheet":
			set[proto.NetworkResourceTypeStylesheet] = true
		}
	}
	return set
}

// blockResources fails matching requests on page. Captions are DOM text,
// so a meeting tab works without images or fonts. Media is never blocked
// implicitly because the call itself is a media stream.
func blockResources(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	set := blockSet(types)
	if len(set) == 0 {
		return nil, nil
	}

	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if set[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}
