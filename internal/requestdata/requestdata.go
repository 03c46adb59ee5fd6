package requestdata

import (
	"context"
)

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData carries the caller's identity. ActorID is set when the
// marketplace access token verified; SessionID covers anonymous traffic.
type RequestData struct {
	ActorID   string
	SessionID string
}

// SubjectKey is the identity used for bucketing and unique-viewer counting:
// the authenticated actor when present, otherwise the session.
func (rd *RequestData) SubjectKey() string {
	if rd == nil {
		return ""
	}
	if rd.ActorID != "" {
		return rd.ActorID
	}
	return rd.SessionID
}
