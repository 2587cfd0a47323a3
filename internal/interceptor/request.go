package interceptor

import (
	"net/url"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/site"
)

// RequestType of an IsolationInfo.
type RequestType int

const (
	RequestTypeMainFrame RequestType = iota
	RequestTypeSubFrame
	RequestTypeOther
)

func (t RequestType) String() string {
	switch t {
	case RequestTypeMainFrame:
		return "main_frame"
	case RequestTypeSubFrame:
		return "sub_frame"
	}
	return "other"
}

// IsolationInfo keys the cookie and cache partition a request uses.
type IsolationInfo struct {
	RequestType    RequestType
	TopFrameOrigin site.Origin
	FrameOrigin    site.Origin
	SiteForCookies site.SiteForCookies
}

// TrustedParams are set only by the browser process.
type TrustedParams struct {
	IsolationInfo IsolationInfo
}

// Request is the part of an outgoing navigation request the throttle may
// rewrite before it starts.
type Request struct {
	URL              *url.URL
	SiteForCookies   site.SiteForCookies
	RequestInitiator *site.Origin
	TrustedParams    *TrustedParams
}

// NewNavigation builds a top-level navigation request to u, which is its own
// first party.
func NewNavigation(u *url.URL) *Request {
	origin := site.OriginFromURL(u)
	sfc := site.FromURL(u)
	return &Request{
		URL:              u,
		SiteForCookies:   sfc,
		RequestInitiator: &origin,
		TrustedParams: &TrustedParams{IsolationInfo: IsolationInfo{
			RequestType:    RequestTypeMainFrame,
			TopFrameOrigin: origin,
			FrameOrigin:    origin,
			SiteForCookies: sfc,
		}},
	}
}

// rekey points the initiator and the isolation partition at the origin of
// the request's current URL.
func (r *Request) rekey() {
	origin := site.OriginFromURL(r.URL)
	r.RequestInitiator = &origin
	r.TrustedParams = &TrustedParams{IsolationInfo: IsolationInfo{
		RequestType:    RequestTypeOther,
		TopFrameOrigin: origin,
		FrameOrigin:    origin,
		SiteForCookies: site.FromOrigin(origin),
	}}
}
