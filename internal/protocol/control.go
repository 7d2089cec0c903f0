package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OCAP2/owl/pkg/core"
)

// Client commands are plain text: a verb followed by space separated
// key=value tokens. List values are comma separated.

// Command joins a verb and its tokens, skipping empty ones.
func Command(verb string, tokens ...string) string {
	parts := make([]string, 0, len(tokens)+1)
	if verb != "" {
		parts = append(parts, verb)
	}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// KV formats a single key=value token.
func KV(key string, value any) string {
	return fmt.Sprintf("%s=%v", key, value)
}

// JoinIDs formats ids as a comma separated list.
func JoinIDs[T ~uint16 | ~uint32 | ~uint64](ids []T) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

// FormatHWID formats a hardware id the way the server prints it.
func FormatHWID(hwid uint64) string {
	return fmt.Sprintf("0x%x", hwid)
}

// Handshake is the first message a client sends after the server opens.
func Handshake(protocol int, version string) string {
	return Command("", KV("protocol", protocol), KV("version", version))
}

// Initialize requests streaming with raw, marker, rigid and info events.
func Initialize(opts string) string {
	return Command("initialize",
		"event.raw=1", "event.markers=1", "event.rigids=1", "event.info=1", opts)
}

func Done(opts string) string {
	return Command("done", opts)
}

func Options(opts string) string {
	return Command("options", opts)
}

func CreateTracker(t core.TrackerInfo) string {
	return Command("createtracker",
		KV("id", t.ID), KV("type", t.Type), nameToken(t.Name),
		midToken(t.MarkerIDs), t.Options)
}

func DestroyTracker(id uint32) string {
	return Command("destroytracker", KV("id", id))
}

func AssignMarker(m core.MarkerInfo) string {
	return Command("assignmarker",
		KV("tracker", m.TrackerID), KV("id", m.ID), nameToken(m.Name), m.Options)
}

func TrackerName(id uint32, name string) string {
	return Command("trackername", KV("id", id), KV("name", name))
}

func TrackerOptions(id uint32, opts string) string {
	return Command("trackeroptions", KV("id", id), opts)
}

func MarkerName(id uint32, name string) string {
	return Command("markername", KV("id", id), KV("name", name))
}

func MarkerOptions(id uint32, opts string) string {
	return Command("markeroptions", KV("id", id), opts)
}

func DeviceOptions(hwid uint64, opts string) string {
	return Command("deviceoptions", KV("hwid", FormatHWID(hwid)), opts)
}

// Filter configures one server-side filter. A zero period disables it.
func Filter(f core.FilterInfo) string {
	return Command("", KV("filter", f.Name), KV("period", f.Period), f.Options)
}

// Pack uploads a complete set of pack descriptors. Every record starts with
// its type token, which is how the server splits the batch.
func Pack(descs []core.PackInfo) string {
	tokens := make([]string, 0, len(descs)*5)
	for _, d := range descs {
		tokens = append(tokens,
			KV("type", uint8(d.Type)), KV("id", d.ID), nameToken(d.Name),
			KV("ids", JoinIDs(d.IDs)), d.Options)
	}
	return Command("table=pack", tokens...)
}

func nameToken(name string) string {
	if name == "" {
		return ""
	}
	return KV("name", name)
}

func midToken(ids []uint32) string {
	if len(ids) == 0 {
		return ""
	}
	return KV("mid", JoinIDs(ids))
}
