package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeDevice renders a short device description from a User-Agent header,
// e.g. "Chrome 120 on Mac OS X". Returns an empty string for empty input so
// the field is omitted from serialized events.
func DescribeDevice(ua string) string {
	if ua == "" {
		return ""
	}

	agent := useragent.New(ua)
	if agent.Bot() {
		if name, _ := agent.Browser(); name != "" {
			return name + " (bot)"
		}
		return "bot"
	}

	name, version := agent.Browser()
	if name == "" {
		return "unknown device"
	}

	desc := name
	if major, _, found := strings.Cut(version, "."); found && major != "" {
		desc += " " + major
	} else if version != "" {
		desc += " " + version
	}

	if os := agent.OSInfo().Name; os != "" {
		desc += " on " + os
	} else if platform := agent.Platform(); platform != "" {
		desc += " on " + platform
	}

	if agent.Mobile() {
		desc += " (mobile)"
	}
	return desc
}
