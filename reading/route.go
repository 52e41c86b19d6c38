package reading

import (
	"fmt"
	"strings"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
)

// Route describes the hierarchical routing key panels publish on:
// <Namespace><Separator><Category><Separator><panel id>.
type Route struct {
	Namespace string
	Category  string
	Separator string
}

// DefaultRoute is the MQTT layout DATA/PM/<panel id>.
func DefaultRoute() Route {
	return Route{Namespace: "DATA", Category: "PM", Separator: "/"}
}

// WithSeparator returns a copy of r using sep, e.g. "." for NATS subjects.
func (r Route) WithSeparator(sep string) Route {
	r.Separator = sep
	return r
}

// PanelID extracts the panel identifier from a routing key. Keys with other
// than three segments, a foreign prefix or an empty last segment are rejected
// with ErrUnrecognizedRoute.
func (r Route) PanelID(key string) (string, error) {
	parts := strings.Split(key, r.Separator)
	if len(parts) != 3 || parts[0] != r.Namespace || parts[1] != r.Category || parts[2] == "" {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnrecognizedRoute, key),
			"Route", "PanelID", "match routing key")
	}
	return parts[2], nil
}

// Key builds the routing key a panel publishes on.
func (r Route) Key(panelID string) string {
	return strings.Join([]string{r.Namespace, r.Category, panelID}, r.Separator)
}

// Subscription builds a filter matching every panel, using the broker's
// single-level wildcard ("+" for MQTT, "*" for NATS).
func (r Route) Subscription(wildcard string) string {
	return r.Key(wildcard)
}
