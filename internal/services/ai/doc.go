// Package ai contains the AI orchestration boundary.
//
// It exposes AI capabilities while ensuring provider credentials, grants, and
// agent registrations remain mapped to owners and audited through shared domain
// contracts rather than ad-hoc inference calls.
package ai
