package protocol

import "context"

type parentKey struct{}

// WithParent returns a context carrying the request that caused the work being
// done under it. Messages published under the context use its header as parent.
func WithParent(ctx context.Context, parent *Message) context.Context {
	return context.WithValue(ctx, parentKey{}, parent)
}

// ParentFrom returns the request carried by ctx, or nil.
func ParentFrom(ctx context.Context) *Message {
	parent, _ := ctx.Value(parentKey{}).(*Message)
	return parent
}

// ParentHeader returns the header of the request carried by ctx, or nil.
func ParentHeader(ctx context.Context) *Header {
	if parent := ParentFrom(ctx); parent != nil {
		return &parent.Header
	}
	return nil
}
