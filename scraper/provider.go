package scraper

import (
	"fmt"
	"strings"
)

// Provider identifies an upstream booking system.
type Provider string

const (
	RecreationGov     Provider = "rg"
	ReserveCalifornia Provider = "rc"
)

// Providers lists the known providers in merge order.
var Providers = []Provider{RecreationGov, ReserveCalifornia}

// DisplayName returns the human name of the booking system.
func (p Provider) DisplayName() string {
	switch p {
	case ReserveCalifornia:
		return "ReserveCalifornia"
	default:
		return "RecreationGov"
	}
}

// ParseProviderID splits "rc:718" into ("rc", "718"). Unprefixed IDs belong
// to Recreation.gov.
func ParseProviderID(id string) (Provider, string) {
	id = strings.TrimSpace(id)
	for _, p := range Providers {
		prefix := string(p) + ":"
		if strings.HasPrefix(id, prefix) {
			return p, id[len(prefix):]
		}
	}
	return RecreationGov, id
}

// SplitByProvider groups IDs per provider, keeping their input order and
// skipping blanks.
func SplitByProvider(ids []string) map[Provider][]string {
	out := make(map[Provider][]string)
	for _, raw := range ids {
		p, id := ParseProviderID(raw)
		if id == "" {
			continue
		}
		out[p] = append(out[p], id)
	}
	return out
}

// QualifiedID returns the ID as it appears in facility labels:
// bare for Recreation.gov, "rc:<id>" for ReserveCalifornia.
func QualifiedID(p Provider, id string) string {
	if p == RecreationGov {
		return id
	}
	return string(p) + ":" + id
}

// FacilityLabel renders "<name> (<qualified id>)".
func FacilityLabel(p Provider, name, id string) string {
	return fmt.Sprintf("%s (%s)", name, QualifiedID(p, id))
}
