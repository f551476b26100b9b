package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Fields holds the named values decoded from one payload.
type Fields map[string]any

// ParserFunc decodes a payload. alias selects variant-specific formulas.
type ParserFunc func(data []byte, alias string) (Fields, error)

var parsers = map[byte]ParserFunc{
	CmdBattery:  ParseBattery,
	CmdSync:     ParseSync,
	CmdFirmware: ParseFirmware,
	CmdState:    ParseState,
	CmdConfig:   ParseConfig,
	CmdDetails:  ParseIdentifiers,
	CmdUpdate:   ParseStatus,
}

// Parser returns the payload parser registered for cmd.
func Parser(cmd byte) (ParserFunc, bool) {
	p, ok := parsers[cmd]
	return p, ok
}

func need(cmd byte, data []byte, n int) error {
	if len(data) < n {
		return fmt.Errorf("%w: cmd %d payload has %d bytes, need %d", ErrMalformedFrame, cmd, len(data), n)
	}
	return nil
}

func int16At(data []byte, off int) int {
	return int(int16(binary.BigEndian.Uint16(data[off : off+2])))
}

func uint32At(data []byte, off int) int {
	return int(binary.BigEndian.Uint32(data[off : off+4]))
}

// ParseBattery decodes cmd 66.
func ParseBattery(data []byte, _ string) (Fields, error) {
	if err := need(CmdBattery, data, 3); err != nil {
		return nil, err
	}
	return Fields{
		"voltage": float64(int(data[0])*256+int(data[1])) / 1000.0,
		"battery": int(data[2]),
	}, nil
}

// ParseSync decodes cmd 86.
func ParseSync(data []byte, _ string) (Fields, error) {
	if err := need(CmdSync, data, 1); err != nil {
		return nil, err
	}
	return Fields{"device_initialized": int(data[0])}, nil
}

// ParseFirmware decodes cmd 200. The vendor app shows byte 0 as the major
// and byte 1 as the minor version, even though byte 0 is the hardware
// revision; the same rendering is kept here.
func ParseFirmware(data []byte, _ string) (Fields, error) {
	if err := need(CmdFirmware, data, 2); err != nil {
		return nil, err
	}
	fw, err := strconv.ParseFloat(fmt.Sprintf("%d.%d", data[0], data[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("protocol: firmware %d.%d: %w", data[0], data[1], err)
	}
	return Fields{"firmware": fw}, nil
}

// ParseState decodes cmd 210.
func ParseState(data []byte, _ string) (Fields, error) {
	if err := need(CmdState, data, 12); err != nil {
		return nil, err
	}
	f := Fields{}
	putStatusHeader(f, data)
	return f, nil
}

// putStatusHeader decodes the 12 status bytes shared by cmd 210 and 230.
func putStatusHeader(f Fields, data []byte) {
	f["power_status"] = int(data[0])
	f["mode"] = int(data[1])
	f["dnd_state"] = int(data[2])
	f["warning_breakdown"] = int(data[3])
	f["warning_water_missing"] = int(data[4])
	f["warning_filter"] = int(data[5])
	f["pump_runtime"] = uint32At(data, 6)
	f["filter_percentage"] = float64(data[10]) / 100
	f["running_status"] = int(data[11])
}

// ParseConfig decodes cmd 211.
func ParseConfig(data []byte, _ string) (Fields, error) {
	if err := need(CmdConfig, data, ConfigLen); err != nil {
		return nil, err
	}
	f := Fields{}
	putSettings(f, data, 0)
	f["is_locked"] = int(data[13])
	return f, nil
}

// putSettings decodes the settings block that starts at off: smart
// schedule, LED and DND fields. Schedule times are signed big-endian
// minute counts.
func putSettings(f Fields, data []byte, off int) {
	ledOn := int16At(data, off+4)
	ledOff := int16At(data, off+6)
	dndOn := int16At(data, off+9)
	dndOff := int16At(data, off+11)

	f["smart_time_on"] = int(data[off])
	f["smart_time_off"] = int(data[off+1])
	f["led_switch"] = int(data[off+2])
	f["led_brightness"] = int(data[off+3])
	f["led_light_time_on"] = ledOn
	f["led_light_time_on_readable"] = MinutesToTimestamp(ledOn)
	f["led_on_byte1"] = int(data[off+4])
	f["led_on_byte2"] = int(data[off+5])
	f["led_light_time_off"] = ledOff
	f["led_light_time_off_readable"] = MinutesToTimestamp(ledOff)
	f["led_off_byte1"] = int(data[off+6])
	f["led_off_byte2"] = int(data[off+7])
	f["do_not_disturb_switch"] = int(data[off+8])
	f["do_not_disturb_time_on"] = dndOn
	f["do_not_disturb_time_on_readable"] = MinutesToTimestamp(dndOn)
	f["dnd_on_byte1"] = int(data[off+9])
	f["dnd_on_byte2"] = int(data[off+10])
	f["do_not_disturb_time_off"] = dndOff
	f["do_not_disturb_time_off_readable"] = MinutesToTimestamp(dndOff)
	f["dnd_off_byte1"] = int(data[off+11])
	f["dnd_off_byte2"] = int(data[off+12])
}

// ParseIdentifiers decodes cmd 213: six identifier bytes at [2:8] and a
// 15-character ASCII serial at [8:23].
func ParseIdentifiers(data []byte, _ string) (Fields, error) {
	if err := need(CmdDetails, data, 23); err != nil {
		return nil, err
	}
	idBytes := make([]byte, 6)
	copy(idBytes, data[2:8])

	var id uint64
	for _, b := range idBytes {
		id = id<<8 | uint64(b)
	}

	serial := make([]rune, 0, 15)
	for _, b := range data[8:23] {
		serial = append(serial, rune(b))
	}

	return Fields{
		"device_id":       id,
		"device_id_bytes": idBytes,
		"serial":          string(serial),
	}, nil
}

// ParseStatus decodes cmd 230, the full status report, and computes the
// derived filter, water and energy values.
func ParseStatus(data []byte, alias string) (Fields, error) {
	if err := need(CmdUpdate, data, 29); err != nil {
		return nil, err
	}
	f := Fields{}
	putStatusHeader(f, data)
	putSettings(f, data, 16)

	mode := int(data[1])
	filterPercentage := float64(data[10]) / 100
	pumpRuntime := uint32At(data, 6)
	pumpRuntimeToday := uint32At(data, 12)
	timeOn, timeOff := ScheduleFor(mode, int(data[16]), int(data[17]))

	f["pump_runtime_today"] = pumpRuntimeToday
	f["pump_runtime_readable"] = RuntimeDays(pumpRuntime)
	f["pump_runtime_today_readable"] = RuntimeHours(pumpRuntimeToday)
	f["filter_time_left"] = RemainingFilterDays(filterPercentage, timeOn, timeOff)
	f["purified_water"] = WaterPurified(alias, pumpRuntime)
	f["purified_water_today"] = WaterPurified(alias, pumpRuntimeToday)
	f["energy_consumed"] = FormatEnergy(EnergyConsumed(alias, pumpRuntime))
	return f, nil
}
