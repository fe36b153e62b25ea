package bot

import (
	"regexp"
)

// dateLayout is the wire format for dates in operator commands: UTC,
// ISO8601 without zone suffix.
const dateLayout = "2006-01-02T15:04:05"

// command describes one entry of the closed command grammar.  The leading
// whitespace-delimited token of a message body selects the command; the
// pattern validates the full body and its named groups carry the fields.
// On a pattern mismatch the usage example is replied verbatim.
type command struct {
	name       string
	pattern    *regexp.Regexp
	usage      string
	privileged bool
}

var createEventCommand = command{
	name:       "create_event",
	pattern:    regexp.MustCompile(`^create_event (?P<id>\w+) (?P<name>\w+) (?P<code>\w+) (?P<start_date>[\w:-]+) (?P<expiry_date>[\w:-]+) (?P<minimum_age>\d+) (?P<minimum_karma>\d+)$`),
	usage:      "'create_event event_id event_name event_code start_date expiry_date minimum_age minimum_karma'\n\nDate strings must be in UTC and ISO8601 formatted, eg. 2021-05-01T00:00:00",
	privileged: true,
}

var updateEventCommand = command{
	name:       "update_event",
	pattern:    regexp.MustCompile(`^update_event (?P<id>\w+) (?P<name>\w+) (?P<code>\w+) (?P<start_date>[\w:-]+) (?P<expiry_date>[\w:-]+) (?P<minimum_age>\d+) (?P<minimum_karma>\d+)$`),
	usage:      "'update_event event_id event_name event_code start_date expiry_date minimum_age minimum_karma'\n\nDate strings must be in UTC and ISO8601 formatted, eg. 2021-05-01T00:00:00",
	privileged: true,
}

var createClaimsCommand = command{
	name:       "create_claims",
	pattern:    regexp.MustCompile(`^create_claims (?P<event_id>\w+) (?P<links>\S+)$`),
	usage:      "'create_claims event_id link1,link2,link3'",
	privileged: true,
}

var reserveClaimsCommand = command{
	name:       "reserve_claims",
	pattern:    regexp.MustCompile(`^reserve_claims (?P<event_id>\w+) (?P<usernames>\S+)$`),
	usage:      "'reserve_claims event_id username1,username2,username3'",
	privileged: true,
}

// commandTable maps the lower-cased leading token to its command.  Any
// token not present is treated as an event code and routed to claim
// allocation.
var commandTable = map[string]command{
	createEventCommand.name:   createEventCommand,
	updateEventCommand.name:   updateEventCommand,
	createClaimsCommand.name:  createClaimsCommand,
	reserveClaimsCommand.name: reserveClaimsCommand,
}

// matchGroups applies the command pattern to the body and returns the
// named groups, or nil when the body does not match.
func matchGroups(pattern *regexp.Regexp, body string) map[string]string {
	m := pattern.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	groups := make(map[string]string)
	for i, name := range pattern.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}
	return groups
}
