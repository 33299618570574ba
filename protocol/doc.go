// Package protocol defines the notebook messaging protocol: message headers,
// message type names, typed content payloads, and a builder that keeps the
// parent/reply correlation rules in one place.
//
// Every message the kernel sends in response to a request carries that
// request's header as its parent:
//
//	reply := protocol.NewReply(req, session.ID(), session.Username(),
//	    protocol.KernelInfoReplyContent{Status: protocol.StatusOK}).Build()
//
// Reply types are derived from request types with ReplyType, so
// "execute_request" is always answered by "execute_reply".
package protocol
