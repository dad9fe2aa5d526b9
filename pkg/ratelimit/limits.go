package ratelimit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// Limits is a fixed-window policy: at most MaxRequests per WindowMS.
type Limits struct {
	WindowMS    int64 `yaml:"window_ms" json:"window_ms"`
	MaxRequests int64 `yaml:"max_requests" json:"max_requests"`
}

// Window returns WindowMS as a duration.
func (l Limits) Window() time.Duration {
	return time.Duration(l.WindowMS) * time.Millisecond
}

// Validate reports a non-positive window or ceiling.
func (l Limits) Validate() error {
	if l.WindowMS <= 0 {
		return gwerr.Validationf("ratelimit: window must be positive, got %dms", l.WindowMS)
	}
	if l.MaxRequests <= 0 {
		return gwerr.Validationf("ratelimit: max requests must be positive, got %d", l.MaxRequests)
	}
	return nil
}

func (l Limits) String() string {
	return strconv.FormatInt(l.WindowMS, 10) + ":" + strconv.FormatInt(l.MaxRequests, 10)
}

// UnmarshalText parses "windowMS:max", e.g. "60000:100".
func (l *Limits) UnmarshalText(text []byte) error {
	w, m, ok := strings.Cut(strings.TrimSpace(string(text)), ":")
	if !ok {
		return gwerr.Validationf("ratelimit: limits %q must be window_ms:max_requests", text)
	}
	window, err := strconv.ParseInt(strings.TrimSpace(w), 10, 64)
	if err != nil {
		return gwerr.Wrapf(err, gwerr.CodeValidation, "ratelimit: bad window in %q", text)
	}
	ceiling, err := strconv.ParseInt(strings.TrimSpace(m), 10, 64)
	if err != nil {
		return gwerr.Wrapf(err, gwerr.CodeValidation, "ratelimit: bad max requests in %q", text)
	}
	parsed := Limits{WindowMS: window, MaxRequests: ceiling}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Limits) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Default policies.
var (
	// IssuanceLimits guard credential issuance: 5 per 15 minutes per IP.
	IssuanceLimits = Limits{WindowMS: (15 * time.Minute).Milliseconds(), MaxRequests: 5}

	// GeneralLimits guard all API traffic: 100 per minute per caller.
	GeneralLimits = Limits{WindowMS: time.Minute.Milliseconds(), MaxRequests: 100}
)

// TierTable maps each subscription tier to its limits. It must hold an
// entry for [auth.TierTrial], which unknown tiers fall back to.
type TierTable map[auth.Tier]Limits

// DefaultTierTable returns the built-in hourly quotas.
func DefaultTierTable() TierTable {
	hour := time.Hour.Milliseconds()
	return TierTable{
		auth.TierTrial:   {WindowMS: hour, MaxRequests: 100},
		auth.TierBasic:   {WindowMS: hour, MaxRequests: 1000},
		auth.TierPremium: {WindowMS: hour, MaxRequests: 10000},
	}
}

// For returns the limits for tier, or the trial limits when tier has no
// entry.
func (t TierTable) For(tier auth.Tier) Limits {
	if l, ok := t[tier]; ok {
		return l
	}
	return t[auth.TierTrial]
}

// Validate checks every entry and that a trial entry exists.
func (t TierTable) Validate() error {
	if _, ok := t[auth.TierTrial]; !ok {
		return gwerr.New(gwerr.CodeValidation, "ratelimit: tier table must define the trial tier")
	}
	for tier, l := range t {
		if !tier.Valid() {
			return gwerr.Validationf("ratelimit: unknown tier %q", tier)
		}
		if err := l.Validate(); err != nil {
			return gwerr.Wrapf(err, gwerr.CodeValidation, "ratelimit: tier %s", tier)
		}
	}
	return nil
}

// UnmarshalText parses "tier=windowMS:max,..." as used in environment
// variables, e.g. "trial=3600000:100,premium=3600000:10000". Tiers not
// named keep their current limits, or the defaults when t is empty.
func (t *TierTable) UnmarshalText(text []byte) error {
	next := DefaultTierTable()
	for tier, l := range *t {
		next[tier] = l
	}
	for _, entry := range strings.Split(string(text), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, spec, ok := strings.Cut(entry, "=")
		if !ok {
			return gwerr.Validationf("ratelimit: tier entry %q must be tier=window_ms:max_requests", entry)
		}
		tier := auth.Tier(strings.TrimSpace(name))
		if !tier.Valid() {
			return gwerr.Validationf("ratelimit: unknown tier %q", tier)
		}
		var l Limits
		if err := l.UnmarshalText([]byte(spec)); err != nil {
			return err
		}
		next[tier] = l
	}
	*t = next
	return nil
}

func (t TierTable) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t TierTable) String() string {
	tiers := make([]auth.Tier, 0, len(t))
	for tier := range t {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Rank() < tiers[j].Rank() })
	parts := make([]string, len(tiers))
	for i, tier := range tiers {
		parts[i] = fmt.Sprintf("%s=%s", tier, t[tier])
	}
	return strings.Join(parts, ",")
}
