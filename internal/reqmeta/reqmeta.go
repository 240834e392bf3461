// Package reqmeta extracts the trusted identity headers spec.md §3/§6
// describes, shared by both gateways. These headers are consumed here and
// must never be forwarded upstream (spec.md §4.1).
package reqmeta

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Trusted header names (spec.md §6).
const (
	HeaderInferenceID      = "inference-id"
	HeaderConsumerID       = "X-Consumer-Custom-ID"
	HeaderConsumerGroups   = "x-consumer-groups"
	HeaderInferenceService = "inference-service"
	HeaderInferencePortal  = "inference-portal"
)

const (
	orgPrefix     = "org_"
	orgUnitPrefix = "orgunit_"
	defaultUID    = "anon"
)

// Meta holds the identity fields extracted from trusted inbound headers.
type Meta struct {
	ID      string
	UID     string
	Org     string
	OrgUnit string
	Portal  string
}

// Extract builds a Meta from the inbound request's trusted headers. The
// service tag is deliberately not handled here: its resolution differs
// per gateway (cloud validates against a static registry; HPC falls back
// to the JSON body's "model" field) and lives in internal/reqtranslate.
func Extract(r *http.Request, defaultPortal string) Meta {
	id := r.Header.Get(HeaderInferenceID)
	if id == "" {
		id = uuid.New().String()
	}

	uid := r.Header.Get(HeaderConsumerID)
	if uid == "" {
		uid = defaultUID
	}

	org, orgUnit := parseGroups(r.Header.Get(HeaderConsumerGroups))

	portal := r.Header.Get(HeaderInferencePortal)
	if portal == "" {
		portal = defaultPortal
	}

	return Meta{ID: id, UID: uid, Org: org, OrgUnit: orgUnit, Portal: portal}
}

// parseGroups splits a comma-separated group membership list and picks out
// the first entry with the org_ prefix and the first with the orgunit_
// prefix, stripping the prefix from each.
func parseGroups(raw string) (org, orgUnit string) {
	if raw == "" {
		return "", ""
	}
	for _, group := range strings.Split(raw, ",") {
		group = strings.TrimSpace(group)
		switch {
		case org == "" && strings.HasPrefix(group, orgPrefix):
			org = strings.TrimPrefix(group, orgPrefix)
		case orgUnit == "" && strings.HasPrefix(group, orgUnitPrefix):
			orgUnit = strings.TrimPrefix(group, orgUnitPrefix)
		}
	}
	return org, orgUnit
}
