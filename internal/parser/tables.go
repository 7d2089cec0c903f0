package parser

import (
	"fmt"
	"strings"

	"github.com/OCAP2/owl/pkg/core"
)

// DeviceStatus is a status update for one device. It never carries the
// descriptive fields of core.DeviceInfo.
type DeviceStatus struct {
	HWID   uint64
	Time   int64
	Status string
}

// body drops the leading header token of a table message.
func body(text string) []Token {
	toks := Tokenize(text)
	if len(toks) == 0 {
		return nil
	}
	return toks[1:]
}

// ParseIDMap parses "table=<kind> name=id ..." into a name to id map.
func ParseIDMap(text string) (map[string]uint16, error) {
	out := make(map[string]uint16)
	for _, t := range body(text) {
		if t.Bare {
			continue
		}
		id, err := parseUint(t.Value, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, t, err)
		}
		out[t.Key] = uint16(id)
	}
	return out, nil
}

// ParseFlags parses "table=enable name=0|1 ..." into per-name flags.
func ParseFlags(text string) (map[string]int32, error) {
	out := make(map[string]int32)
	for _, t := range body(text) {
		if t.Bare {
			continue
		}
		v, err := parseInt(t.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, t, err)
		}
		out[t.Key] = int32(v)
	}
	return out, nil
}

// ParseTrackerInfo parses "table=trackers id=N type=T name=S mid=a,b ...".
// Every id= token starts a new record.
func ParseTrackerInfo(text string) ([]core.TrackerInfo, error) {
	var out []core.TrackerInfo
	var cur *core.TrackerInfo
	for _, t := range body(text) {
		if t.Key == "id" {
			id, err := parseUint(t.Value, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: tracker %s: %v", ErrMalformed, t, err)
			}
			out = append(out, core.TrackerInfo{ID: uint32(id)})
			cur = &out[len(out)-1]
			continue
		}
		if cur == nil {
			continue
		}
		switch t.Key {
		case "type":
			cur.Type = t.Value
		case "name":
			cur.Name = t.Value
		case "mid":
			ids, err := parseIDs32(t.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: tracker %d: %v", ErrMalformed, cur.ID, err)
			}
			cur.MarkerIDs = ids
		default:
			cur.Options = appendOption(cur.Options, t)
		}
	}
	return out, nil
}

// ParseMarkerInfo parses "table=markers id=N tracker=T name=S ...".
func ParseMarkerInfo(text string) ([]core.MarkerInfo, error) {
	var out []core.MarkerInfo
	var cur *core.MarkerInfo
	for _, t := range body(text) {
		if t.Key == "id" {
			id, err := parseUint(t.Value, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: marker %s: %v", ErrMalformed, t, err)
			}
			out = append(out, core.MarkerInfo{ID: uint32(id)})
			cur = &out[len(out)-1]
			continue
		}
		if cur == nil {
			continue
		}
		switch t.Key {
		case "tracker", "tid":
			tid, err := parseUint(t.Value, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: marker %d: %v", ErrMalformed, cur.ID, err)
			}
			cur.TrackerID = uint32(tid)
		case "name":
			cur.Name = t.Value
		default:
			cur.Options = appendOption(cur.Options, t)
		}
	}
	return out, nil
}

// ParseDeviceInfo parses the descriptive fields of "table=devices". Status
// is left empty; it arrives through ParseDeviceStatus.
func ParseDeviceInfo(text string) ([]core.DeviceInfo, error) {
	var out []core.DeviceInfo
	var cur *core.DeviceInfo
	for _, t := range body(text) {
		if t.Key == "hwid" {
			hwid, err := parseUint(t.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: device %s: %v", ErrMalformed, t, err)
			}
			out = append(out, core.DeviceInfo{HWID: hwid})
			cur = &out[len(out)-1]
			continue
		}
		if cur == nil {
			continue
		}
		switch t.Key {
		case "time":
			v, err := parseInt(t.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: device 0x%x: %v", ErrMalformed, cur.HWID, err)
			}
			cur.Time = v
		case "type":
			cur.Type = t.Value
		case "name":
			cur.Name = t.Value
		default:
			cur.Options = appendOption(cur.Options, t)
		}
	}
	return out, nil
}

// ParseDeviceStatus parses "status=devices hwid=H time=T ...". Everything
// after the identity and time tokens is kept verbatim as the status text.
func ParseDeviceStatus(text string) ([]DeviceStatus, error) {
	var out []DeviceStatus
	var cur *DeviceStatus
	for _, t := range body(text) {
		if t.Key == "hwid" {
			hwid, err := parseUint(t.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: device status %s: %v", ErrMalformed, t, err)
			}
			out = append(out, DeviceStatus{HWID: hwid})
			cur = &out[len(out)-1]
			continue
		}
		if cur == nil {
			continue
		}
		if t.Key == "time" {
			v, err := parseInt(t.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: device status 0x%x: %v", ErrMalformed, cur.HWID, err)
			}
			cur.Time = v
			continue
		}
		cur.Status = appendOption(cur.Status, t)
	}
	return out, nil
}

// ParseFilterInfo parses "filter=name period=N ..." records. Unlike the
// other tables the identity token is also the header.
func ParseFilterInfo(text string) ([]core.FilterInfo, error) {
	var out []core.FilterInfo
	var cur *core.FilterInfo
	for _, t := range Tokenize(text) {
		if t.Key == "filter" {
			out = append(out, core.FilterInfo{Name: t.Value})
			cur = &out[len(out)-1]
			continue
		}
		if cur == nil {
			continue
		}
		if t.Key == "period" {
			v, err := parseUint(t.Value, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: filter %s: %v", ErrMalformed, cur.Name, err)
			}
			cur.Period = uint32(v)
			continue
		}
		cur.Options = appendOption(cur.Options, t)
	}
	return out, nil
}

// ParsePackInfo parses "table=pack type=T id=N name=S ids=a,b ...". Records
// start at each type= token and must carry id and ids. Any malformed record
// rejects the whole batch.
func ParsePackInfo(text string) ([]core.PackInfo, error) {
	toks := Tokenize(text)
	if len(toks) == 0 || toks[0].Key != "table" || toks[0].Value != "pack" {
		return nil, fmt.Errorf("%w: want table=pack, got %q", ErrNotTable, Header(text).String())
	}

	type record struct {
		info   core.PackInfo
		hasID  bool
		hasIDs bool
	}
	var recs []record
	for _, t := range toks[1:] {
		if t.Key == "type" {
			typ, err := parsePackType(t.Value)
			if err != nil {
				return nil, err
			}
			recs = append(recs, record{info: core.PackInfo{Type: typ}})
			continue
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("%w: pack token %s before type", ErrMalformed, t)
		}
		cur := &recs[len(recs)-1]
		switch t.Key {
		case "id":
			id, err := parseUint(t.Value, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: pack %s: %v", ErrMalformed, t, err)
			}
			cur.info.ID = uint16(id)
			cur.hasID = true
		case "ids":
			ids, err := ParseIDs(t.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: pack %d: %v", ErrMalformed, cur.info.ID, err)
			}
			cur.info.IDs = ids
			cur.hasIDs = true
		case "name":
			cur.info.Name = t.Value
		default:
			cur.info.Options = appendOption(cur.info.Options, t)
		}
	}

	out := make([]core.PackInfo, 0, len(recs))
	for i, r := range recs {
		if !r.hasID || !r.hasIDs {
			return nil, fmt.Errorf("%w: pack record %d needs id and ids", ErrMalformed, i)
		}
		out = append(out, r.info)
	}
	return out, nil
}

func parsePackType(s string) (core.Type, error) {
	if v, err := parseUint(s, 8); err == nil {
		return core.Type(v), nil
	}
	if t, ok := core.ParseType(strings.ToLower(s)); ok {
		return t, nil
	}
	return core.TypeInvalid, fmt.Errorf("%w: pack type %q", ErrMalformed, s)
}
